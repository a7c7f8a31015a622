package audit

import (
	"context"
	"testing"
)

func TestNewSinkReturnsNoopWhenDatabaseURLEmpty(t *testing.T) {
	sink, err := NewSink(context.Background(), "")
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}
	if _, ok := sink.(NoopSink); !ok {
		t.Fatalf("expected NoopSink, got %T", sink)
	}
}

func TestNoopSinkRecordAndCloseAreNoErrorNoop(t *testing.T) {
	var sink Sink = NoopSink{}
	if err := sink.Record(context.Background(), TurnRecord{SessionID: "s1"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
