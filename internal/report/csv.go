package report

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	csvFlushEvery = 200
	csvBufferSize = 32 * 1024
)

type csvStreamer struct {
	buf          *bufio.Writer
	csv          *csv.Writer
	flushEvery   int
	pendingLines int
}

func newCSVStreamer(w io.Writer) *csvStreamer {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	return &csvStreamer{buf: buf, csv: writer, flushEvery: csvFlushEvery}
}

func (s *csvStreamer) writeComment(line string) error {
	if s == nil || s.buf == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	if !strings.HasSuffix(line, "\r\n") {
		line = strings.TrimSuffix(line, "\n")
		line += "\r\n"
	}
	if _, err := s.buf.WriteString(line); err != nil {
		return err
	}
	return nil
}

func (s *csvStreamer) writeRow(row []string) error {
	if s == nil || s.csv == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	if err := s.csv.Write(row); err != nil {
		return err
	}
	s.pendingLines++
	if s.flushEvery > 0 && s.pendingLines >= s.flushEvery {
		return s.Flush()
	}
	return nil
}

func (s *csvStreamer) Flush() error {
	if s == nil || s.csv == nil || s.buf == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.pendingLines = 0
	return nil
}

func (s *csvStreamer) Close() error {
	return s.Flush()
}

// WriteCSV streams the report, one row per actor, with indentation encoded
// in the Name column and fees flattened into a summary column.
func WriteCSV(w io.Writer, rep *Report) error {
	streamer := newCSVStreamer(w)
	if err := writeCSVMetadata(streamer, rep); err != nil {
		return err
	}
	header := []string{"Actor ID", "Name", "Kind", "Activity",
		"Cash Count", "Cash Amount", "Card Count", "Card Amount",
		"Fee Total", "Fees", "Device", "Signal"}
	if err := streamer.writeRow(header); err != nil {
		return err
	}
	for _, row := range rep.Rows {
		record := []string{
			row.ActorID,
			strings.Repeat("  ", row.Depth) + row.Name,
			string(row.Kind),
			string(row.Activity),
			formatCount(row.Cash),
			formatAmount(row.Cash),
			formatCount(row.Card),
			formatAmount(row.Card),
			FormatMoney(row.FeeTotal),
			formatFees(row.Fees),
			formatDevice(row.Device),
			formatSignal(row.Device),
		}
		if err := streamer.writeRow(record); err != nil {
			return err
		}
	}
	return streamer.Close()
}

func writeCSVMetadata(streamer *csvStreamer, rep *Report) error {
	if err := streamer.writeComment("# Report: Vending Sales & Fees"); err != nil {
		return err
	}
	line := fmt.Sprintf("# Period: %s to %s | Generated: %s",
		rep.Start, rep.End, rep.GeneratedAt.Format("2006-01-02 15:04:05"))
	if err := streamer.writeComment(line); err != nil {
		return err
	}
	if len(rep.Fetch.Failed) == 0 {
		return streamer.writeComment("# Fetch failures: none")
	}
	return streamer.writeComment("# Fetch failures: " + strings.Join(rep.Fetch.Failed, "; "))
}

func formatCount(a *Amounts) string {
	if a == nil {
		return ""
	}
	return strconv.FormatInt(a.Count, 10)
}

func formatAmount(a *Amounts) string {
	if a == nil {
		return ""
	}
	return FormatMoney(a.Amount)
}

func formatFees(fees []FeeLine) string {
	if len(fees) == 0 {
		return ""
	}
	parts := make([]string, len(fees))
	for i, f := range fees {
		parts[i] = fmt.Sprintf("%s=%s", f.Name, FormatMoney(f.Value))
	}
	return strings.Join(parts, "; ")
}

func formatDevice(d *Device) string {
	if d == nil {
		return ""
	}
	if d.VPOSSerial != "" && d.VPOSSerial != d.DTUSerial {
		return d.DTUSerial + "/" + d.VPOSSerial
	}
	return d.DTUSerial
}

func formatSignal(d *Device) string {
	if d == nil {
		return ""
	}
	return d.Signal
}
