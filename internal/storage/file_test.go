package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"blastd/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", " None "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%q): %v", driver, err)
		}
		if st != nil {
			t.Fatalf("Open(%q) returned a store, want nil", driver)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("expected an error for an unknown driver")
	}
}

func TestFileStoreAppendAudit(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	ctx := context.Background()
	entries := []AuditEntry{
		{SessionID: "s1", Event: "started", Target: "1001", Mode: "direct"},
		{SessionID: "s1", Event: "completed", Target: "1001", Mode: "direct", Sent: 3, Failed: 1},
	}
	for _, e := range entries {
		if err := st.AppendAudit(ctx, e); err != nil {
			t.Fatalf("AppendAudit: %v", err)
		}
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open audit file: %v", err)
	}
	defer f.Close()

	var got []auditRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r auditRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		got = append(got, r)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("audit file has %d records, want 2", len(got))
	}
	if got[0].Event != "started" || got[1].Event != "completed" {
		t.Fatalf("events = %s, %s", got[0].Event, got[1].Event)
	}
	if got[1].Sent != 3 || got[1].Failed != 1 {
		t.Fatalf("counters = %d/%d, want 3/1", got[1].Sent, got[1].Failed)
	}
	if got[0].At.IsZero() {
		t.Fatal("timestamp not stamped on append")
	}
}

func TestFileStoreAppendIsDurableAcrossReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
		if err != nil {
			t.Fatalf("Open #%d: %v", i, err)
		}
		if err := st.AppendAudit(ctx, AuditEntry{At: time.Now(), SessionID: "s", Event: "started"}); err != nil {
			t.Fatalf("AppendAudit #%d: %v", i, err)
		}
		if err := st.Close(); err != nil {
			t.Fatalf("Close #%d: %v", i, err)
		}
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read audit file: %v", err)
	}
	lines := 0
	for _, c := range b {
		if c == '\n' {
			lines++
		}
	}
	if lines != 2 {
		t.Fatalf("audit file has %d lines after reopen, want 2", lines)
	}
}

func TestFileStoreAppendAfterClose(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := st.AppendAudit(context.Background(), AuditEntry{SessionID: "s", Event: "started"}); err == nil {
		t.Fatal("AppendAudit succeeded after Close")
	}
	if err := st.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
