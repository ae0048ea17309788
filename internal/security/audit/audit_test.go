package audit

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAppendAndList(t *testing.T) {
	log := New(10, nil, nil)
	log.Append(Record{Type: TypeAuthSuccess, Severity: SeverityInfo, Actor: "agent-1"})
	records := log.List()
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
}

func TestAppendEvictsOldestPastCapacity(t *testing.T) {
	log := New(2, nil, nil)
	for i := 0; i < 5; i++ {
		log.Append(Record{Type: TypeAuthSuccess, Actor: "agent-1"})
	}
	if len(log.List()) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(log.List()))
	}
}

func TestClusterDetectionFiresOnRepeatedFailures(t *testing.T) {
	log := New(100, nil, []ClusterRule{{Type: TypeAuthFailure, Threshold: 3, Window: time.Minute}})
	var alerted Record
	fired := false
	log.OnAlert(func(r Record) {
		alerted = r
		fired = true
	})

	for i := 0; i < 3; i++ {
		log.Append(Record{Type: TypeAuthFailure, Severity: SeverityWarning, Actor: "attacker"})
	}

	if !fired {
		t.Fatal("expected suspicious_activity alert after 3 failures")
	}
	if alerted.Type != TypeSuspiciousActivity || alerted.Actor != "attacker" {
		t.Fatalf("unexpected alert record: %+v", alerted)
	}
}

func TestClusterDetectionIgnoresDifferentActors(t *testing.T) {
	log := New(100, nil, []ClusterRule{{Type: TypeAuthFailure, Threshold: 2, Window: time.Minute}})
	fired := false
	log.OnAlert(func(Record) { fired = true })

	log.Append(Record{Type: TypeAuthFailure, Actor: "a"})
	log.Append(Record{Type: TypeAuthFailure, Actor: "b"})

	if fired {
		t.Fatal("did not expect alert across distinct actors")
	}
}

func TestReportCountsByTypeAndSeverity(t *testing.T) {
	log := New(100, nil, nil)
	now := time.Now()
	log.Append(Record{Time: now, Type: TypeAuthSuccess, Severity: SeverityInfo, Actor: "a"})
	log.Append(Record{Time: now, Type: TypeAuthFailure, Severity: SeverityWarning, Actor: "a"})

	report := log.Report(now.Add(-time.Minute), now.Add(time.Minute))
	if report.TotalEvents != 2 {
		t.Fatalf("TotalEvents = %d, want 2", report.TotalEvents)
	}
	if report.ByType[TypeAuthFailure] != 1 {
		t.Fatalf("ByType[auth_failure] = %d, want 1", report.ByType[TypeAuthFailure])
	}
}

func TestFileSinkPersistsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := NewFileSink(path)
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()

	log := New(10, sink, nil)
	log.Append(Record{Type: TypeAuthSuccess, Actor: "a"})

	fi, err := os.Stat(path)
	if err != nil || fi.Size() == 0 {
		t.Fatalf("expected non-empty audit file, err=%v", err)
	}
}
