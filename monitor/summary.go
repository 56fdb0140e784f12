// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package monitor

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"gonum.org/v1/gonum/stat"

	"github.com/bradleyjkemp/babyfuzz/fuzzer"
)

// Summary prints the end of session report: the final stats, the corpus
// input lengths and one row per stored crasher.
func Summary(w io.Writer, s fuzzer.Stats, corpus *fuzzer.Corpus, crashers *fuzzer.CrashStore) {
	mean, std := lengthStats(corpus)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"iterations", "execs", "execs/sec", "corpus", "len mean", "len std", "cover", "crashers", "timeouts", "uptime"})
	table.Append([]string{
		fmt.Sprintf("%d", s.Iteration),
		fmt.Sprintf("%d", s.Execs),
		fmt.Sprintf("%.0f", s.ExecsPerSec),
		fmt.Sprintf("%d", s.Corpus),
		fmt.Sprintf("%.1f", mean),
		fmt.Sprintf("%.1f", std),
		fmt.Sprintf("%d", s.Cover),
		fmt.Sprintf("%d", s.Crashers),
		fmt.Sprintf("%d", s.Timeouts),
		s.Uptime.Truncate(time.Second).String(),
	})
	table.Render()

	if crashers == nil || crashers.Len() == 0 {
		return
	}
	table = tablewriter.NewWriter(w)
	table.SetHeader([]string{"file", "kind", "iteration", "fingerprint", "crash site"})
	table.SetAutoWrapText(false)
	for _, rec := range crashers.Records() {
		table.Append([]string{
			crashers.Path(rec),
			rec.Kind.String(),
			fmt.Sprintf("%d", rec.Iteration),
			rec.Fingerprint.String(),
			firstLine(rec.Suppression),
		})
	}
	table.Render()
}

func lengthStats(corpus *fuzzer.Corpus) (mean, std float64) {
	if corpus == nil || corpus.Len() == 0 {
		return 0, 0
	}
	lens := make([]float64, corpus.Len())
	for i, e := range corpus.Entries() {
		lens[i] = float64(len(e.Data))
	}
	mean, std = stat.MeanStdDev(lens, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return mean, std
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
