// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package coverage

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Fingerprint is the sorted set of non-zero slot indices of a map.
// Hit counts do not participate, so two runs reaching the same points
// have equal fingerprints.
type Fingerprint []int

// Sig identifies a fingerprint in dedup tables.
type Sig [sha1.Size]byte

func (s Sig) String() string { return hex.EncodeToString(s[:]) }

func fingerprintOf(tab []byte) Fingerprint {
	fp := Fingerprint{}
	for i, v := range tab {
		if v != 0 {
			fp = append(fp, i)
		}
	}
	return fp
}

// NewFingerprint builds a fingerprint from indices in any order.
func NewFingerprint(indices ...int) Fingerprint {
	fp := append(Fingerprint{}, indices...)
	sort.Ints(fp)
	n := 0
	for i, v := range fp {
		if i > 0 && v == fp[n-1] {
			continue
		}
		fp[n] = v
		n++
	}
	return fp[:n]
}

func (fp Fingerprint) Len() int { return len(fp) }

// Contains reports whether point i is in the set.
func (fp Fingerprint) Contains(i int) bool {
	j := sort.SearchInts(fp, i)
	return j < len(fp) && fp[j] == i
}

// Subset reports whether every point of fp is also in other.
func (fp Fingerprint) Subset(other Fingerprint) bool {
	j := 0
	for _, v := range fp {
		for j < len(other) && other[j] < v {
			j++
		}
		if j == len(other) || other[j] != v {
			return false
		}
	}
	return true
}

func (fp Fingerprint) Equal(other Fingerprint) bool {
	if len(fp) != len(other) {
		return false
	}
	for i := range fp {
		if fp[i] != other[i] {
			return false
		}
	}
	return true
}

func (fp Fingerprint) Sig() Sig {
	h := sha1.New()
	var buf [8]byte
	for _, v := range fp {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	var s Sig
	copy(s[:], h.Sum(nil))
	return s
}

// String renders the set as "{0,1,2}".
func (fp Fingerprint) String() string {
	strs := make([]string, len(fp))
	for i, v := range fp {
		strs[i] = strconv.Itoa(v)
	}
	return "{" + strings.Join(strs, ",") + "}"
}

// ParseFingerprint is the inverse of String.
func ParseFingerprint(s string) (Fingerprint, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '{' || s[len(s)-1] != '}' {
		return nil, fmt.Errorf("malformed fingerprint %q", s)
	}
	body := s[1 : len(s)-1]
	if body == "" {
		return Fingerprint{}, nil
	}
	var indices []int
	for _, f := range strings.Split(body, ",") {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("malformed fingerprint %q: %v", s, err)
		}
		indices = append(indices, v)
	}
	return NewFingerprint(indices...), nil
}
