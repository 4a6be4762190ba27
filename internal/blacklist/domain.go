// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package blacklist

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// labelNode is one node of the shared label tree backing both the DNS
// (suffix) and URL (prefix) blacklists.
type labelNode struct {
	children map[string]*labelNode
	terminal bool
	bitmap   uint32
}

func newLabelNode() *labelNode {
	return &labelNode{children: make(map[string]*labelNode)}
}

// LabelTree is a trie over label sequences. Insert walks labels in whatever
// order the caller supplies (reversed for DNS suffix matching, forward for
// URL prefix matching) and marks the final node terminal. Lookup accumulates
// the bitmap of every terminal node it passes through, so a blacklisted
// ancestor label (e.g. "example.com") matches every descendant it implies
// ("foo.example.com").
type LabelTree struct {
	root *labelNode
}

func NewLabelTree() *LabelTree {
	return &LabelTree{root: newLabelNode()}
}

func (t *LabelTree) Insert(labels []string, bitmap uint32) {
	n := t.root
	for _, l := range labels {
		child, ok := n.children[l]
		if !ok {
			child = newLabelNode()
			n.children[l] = child
		}
		n = child
	}
	n.terminal = true
	n.bitmap |= bitmap
}

func (t *LabelTree) Lookup(labels []string) uint32 {
	n := t.root
	var bitmap uint32
	for _, l := range labels {
		child, ok := n.children[l]
		if !ok {
			break
		}
		n = child
		if n.terminal {
			bitmap |= n.bitmap
		}
	}
	return bitmap
}

func normalizeHost(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.TrimPrefix(h, "www.")
	h = strings.TrimSuffix(h, "/")
	return h
}

// dnsLabels splits an FQDN on '.' and reverses it, so the tree is keyed from
// TLD down — the suffix order spec.md §4.C8 requires ("example.com" must
// match any "*.example.com").
func dnsLabels(fqdn string) []string {
	fqdn = normalizeHost(fqdn)
	if fqdn == "" {
		return nil
	}
	parts := strings.Split(fqdn, ".")
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return parts
}

// urlLabels splits a normalized host+path string into host labels followed
// by path segments, in left-to-right order — the prefix order spec.md §4.C8
// requires ("example.com" must match "example.com/anything").
func urlLabels(hostPath string) []string {
	hostPath = normalizeHost(hostPath)
	if hostPath == "" {
		return nil
	}
	return strings.FieldsFunc(hostPath, func(r rune) bool { return r == '.' || r == '/' })
}

// DNSBlacklist wraps a LabelTree with the suffix-order FQDN convention.
type DNSBlacklist struct{ tree *LabelTree }

func NewDNSBlacklist() *DNSBlacklist { return &DNSBlacklist{tree: NewLabelTree()} }

func (d *DNSBlacklist) Insert(fqdn string, bitmap uint32) { d.tree.Insert(dnsLabels(fqdn), bitmap) }

func (d *DNSBlacklist) Lookup(fqdn string) uint32 { return d.tree.Lookup(dnsLabels(fqdn)) }

// URLBlacklist wraps a LabelTree with the prefix-order host+path convention.
type URLBlacklist struct{ tree *LabelTree }

func NewURLBlacklist() *URLBlacklist { return &URLBlacklist{tree: NewLabelTree()} }

func (u *URLBlacklist) Insert(hostPath string, bitmap uint32) {
	u.tree.Insert(urlLabels(hostPath), bitmap)
}

func (u *URLBlacklist) Lookup(hostPath string) uint32 { return u.tree.Lookup(urlLabels(hostPath)) }

// loadDomainFile parses `<host-or-host+path>\<bl_id_bitmap_decimal>` lines
// (separator is a literal backslash) and calls insert for each well-formed
// one. Malformed lines are logged and skipped.
func loadDomainFile(path string, log zerolog.Logger, insert func(key string, bitmap uint32)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		idx := strings.LastIndexByte(line, '\\')
		if idx < 0 {
			log.Warn().Int("line", lineNo).Str("file", path).Msg("skipping malformed blacklist line: missing separator")
			continue
		}
		key := line[:idx]
		bitmap, err := strconv.ParseUint(line[idx+1:], 10, 32)
		if err != nil {
			log.Warn().Err(err).Int("line", lineNo).Str("file", path).Msg("skipping malformed blacklist line: bad bitmap")
			continue
		}
		insert(key, uint32(bitmap))
	}
	return scanner.Err()
}

// LoadDNSFile loads a DNS blacklist file into a fresh DNSBlacklist.
func LoadDNSFile(path string, log zerolog.Logger) (*DNSBlacklist, error) {
	d := NewDNSBlacklist()
	if err := loadDomainFile(path, log, d.Insert); err != nil {
		return nil, fmt.Errorf("loading DNS blacklist %s: %w", path, err)
	}
	return d, nil
}

// LoadURLFile loads a URL blacklist file into a fresh URLBlacklist.
func LoadURLFile(path string, log zerolog.Logger) (*URLBlacklist, error) {
	u := NewURLBlacklist()
	if err := loadDomainFile(path, log, u.Insert); err != nil {
		return nil, fmt.Errorf("loading URL blacklist %s: %w", path, err)
	}
	return u, nil
}
