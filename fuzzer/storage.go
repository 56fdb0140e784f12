// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzer

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"golang.org/x/sys/unix"
	"golang.org/x/tools/txtar"

	"github.com/bradleyjkemp/babyfuzz/coverage"
)

// PersistentSet is a directory of artifacts named by the hex SHA-1 of their
// content, so identical artifacts share a file across runs.
type PersistentSet struct {
	dir string
	m   map[Sig][]byte
}

type Sig [sha1.Size]byte

func (s Sig) String() string { return hex.EncodeToString(s[:]) }

func hash(data []byte) Sig {
	return Sig(sha1.Sum(data))
}

const descExt = ".txtar"

func newPersistentSet(dir string) (*PersistentSet, error) {
	ps := &PersistentSet{
		dir: dir,
		m:   make(map[Sig][]byte),
	}
	if err := os.MkdirAll(dir, 0770); err != nil {
		return nil, err
	}
	if err := unix.Access(dir, unix.W_OK|unix.X_OK); err != nil {
		return nil, fmt.Errorf("%v is not writable: %v", dir, err)
	}
	ps.readInDir()
	return ps, nil
}

func (ps *PersistentSet) readInDir() {
	filepath.Walk(ps.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			glog.Warningf("error during dir walk: %v", err)
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if strings.HasSuffix(info.Name(), descExt) {
			return nil
		}
		data, err := ioutil.ReadFile(path)
		if err != nil {
			glog.Warningf("error during file read: %v", err)
			return nil
		}
		ps.m[hash(data)] = data
		return nil
	})
}

func (ps *PersistentSet) path(sig Sig) string {
	return filepath.Join(ps.dir, sig.String())
}

func (ps *PersistentSet) has(data []byte) bool {
	_, ok := ps.m[hash(data)]
	return ok
}

// add writes data unless an identical artifact is already stored.
func (ps *PersistentSet) add(data []byte) (bool, error) {
	sig := hash(data)
	if _, ok := ps.m[sig]; ok {
		return false, nil
	}
	if err := writeFileSync(ps.path(sig), data); err != nil {
		return false, err
	}
	ps.m[sig] = makeCopy(data)
	return true, nil
}

// remove forgets data and deletes its file.
func (ps *PersistentSet) remove(data []byte) {
	sig := hash(data)
	delete(ps.m, sig)
	if err := os.Remove(ps.path(sig)); err != nil && !os.IsNotExist(err) {
		glog.Warningf("failed to remove %v: %v", ps.path(sig), err)
	}
}

func (ps *PersistentSet) addDescription(data []byte, desc []byte) error {
	return writeFileSync(ps.path(hash(data))+descExt, desc)
}

// writeFileSync is ioutil.WriteFile followed by fsync.
func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0660)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (ps *PersistentSet) readDescription(sig Sig) ([]byte, error) {
	return ioutil.ReadFile(ps.path(sig) + descExt)
}

func (ps *PersistentSet) Len() int { return len(ps.m) }

// CrashRecord is a stored objective.
type CrashRecord struct {
	Data        Input
	Fingerprint coverage.Fingerprint
	Iteration   uint64
	Kind        ExitKind
	Output      []byte
	Suppression []byte
}

// CrashStore keeps at most one record per exit kind and coverage
// fingerprint and writes every record to disk before reporting it as stored.
type CrashStore struct {
	set     *PersistentSet
	records []CrashRecord
	byKey   map[crashKey]int
}

// Timeouts carry an empty fingerprint, so the kind is part of the key.
type crashKey struct {
	kind ExitKind
	sig  coverage.Sig
}

func keyOf(kind ExitKind, fp coverage.Fingerprint) crashKey {
	return crashKey{kind: kind, sig: fp.Sig()}
}

func OpenCrashStore(dir string) (*CrashStore, error) {
	set, err := newPersistentSet(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrashDir, err)
	}
	cs := &CrashStore{
		set:   set,
		byKey: make(map[crashKey]int),
	}
	for sig, data := range set.m {
		desc, err := set.readDescription(sig)
		if err != nil {
			glog.Warningf("crasher %v has no description, it will not take part in dedup: %v", sig, err)
			continue
		}
		rec, err := parseDescription(data, desc)
		if err != nil {
			glog.Warningf("bad description of crasher %v: %v", sig, err)
			continue
		}
		cs.insert(rec)
	}
	if len(cs.records) != 0 {
		glog.Infof("loaded %v crashers from %v", len(cs.records), dir)
	}
	return cs, nil
}

func (cs *CrashStore) insert(rec CrashRecord) {
	cs.byKey[keyOf(rec.Kind, rec.Fingerprint)] = len(cs.records)
	cs.records = append(cs.records, rec)
}

func (cs *CrashStore) Dir() string { return cs.set.dir }

func (cs *CrashStore) Len() int { return len(cs.records) }

// Records returns the stored records. The slice must not be modified.
func (cs *CrashStore) Records() []CrashRecord { return cs.records }

// Known reports whether a crasher of this kind with this fingerprint is
// already stored.
func (cs *CrashStore) Known(kind ExitKind, fp coverage.Fingerprint) bool {
	_, ok := cs.byKey[keyOf(kind, fp)]
	return ok
}

// Add persists rec if its fingerprint is new. A write failure is returned
// wrapped in ErrCrashWrite; neither the record nor its input is kept in
// that case.
func (cs *CrashStore) Add(rec CrashRecord) (bool, error) {
	if cs.Known(rec.Kind, rec.Fingerprint) || cs.set.has(rec.Data) {
		return false, nil
	}
	rec.Data = makeCopy(rec.Data)
	if _, err := cs.set.add(rec.Data); err != nil {
		return false, fmt.Errorf("%w: %v", ErrCrashWrite, err)
	}
	if err := cs.set.addDescription(rec.Data, formatDescription(rec)); err != nil {
		cs.set.remove(rec.Data)
		return false, fmt.Errorf("%w: %v", ErrCrashWrite, err)
	}
	cs.insert(rec)
	return true, nil
}

// Path returns the file holding the input of rec.
func (cs *CrashStore) Path(rec CrashRecord) string {
	return cs.set.path(hash(rec.Data))
}

// formatDescription renders rec as a txtar archive kept next to the input.
func formatDescription(rec CrashRecord) []byte {
	a := &txtar.Archive{
		Comment: []byte(fmt.Sprintf("%v found at iteration %v\n", rec.Kind, rec.Iteration)),
		Files: []txtar.File{
			{Name: "kind", Data: []byte(rec.Kind.String() + "\n")},
			{Name: "iteration", Data: []byte(strconv.FormatUint(rec.Iteration, 10) + "\n")},
			{Name: "fingerprint", Data: []byte(rec.Fingerprint.String() + "\n")},
			{Name: "quoted", Data: quote(rec.Data)},
			{Name: "suppression", Data: withNewline(rec.Suppression)},
			{Name: "output", Data: withNewline(rec.Output)},
		},
	}
	return txtar.Format(a)
}

func parseDescription(data, desc []byte) (CrashRecord, error) {
	rec := CrashRecord{Data: data}
	a := txtar.Parse(desc)
	found := false
	for _, f := range a.Files {
		val := strings.TrimSpace(string(f.Data))
		switch f.Name {
		case "fingerprint":
			fp, err := coverage.ParseFingerprint(val)
			if err != nil {
				return rec, err
			}
			rec.Fingerprint = fp
			found = true
		case "iteration":
			rec.Iteration, _ = strconv.ParseUint(val, 10, 64)
		case "kind":
			if val == Timeout.String() {
				rec.Kind = Timeout
			} else {
				rec.Kind = Crash
			}
		case "suppression":
			rec.Suppression = f.Data
		case "output":
			rec.Output = f.Data
		}
	}
	if !found {
		return rec, fmt.Errorf("no fingerprint in description")
	}
	return rec, nil
}

// Prepare quoted version of input to simplify creation of standalone reproducers.
func quote(data []byte) []byte {
	var buf bytes.Buffer
	if len(data) == 0 {
		buf.WriteString("\t\"\"\n")
	}
	for i := 0; i < len(data); i += 20 {
		e := i + 20
		if e > len(data) {
			e = len(data)
		}
		fmt.Fprintf(&buf, "\t%q", data[i:e])
		if e != len(data) {
			fmt.Fprintf(&buf, " +")
		}
		fmt.Fprintf(&buf, "\n")
	}
	return buf.Bytes()
}

func withNewline(b []byte) []byte {
	if len(b) == 0 || b[len(b)-1] == '\n' {
		return b
	}
	return append(makeCopy(b), '\n')
}
