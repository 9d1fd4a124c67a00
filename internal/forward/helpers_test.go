package forward

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/knx-monitor/internal/kdrive"
	"github.com/nerrad567/knx-monitor/internal/telegram"
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testTime }

// groupWrite builds an L_Data.ind GroupValueWrite from 1.1.5.
func groupWrite(ga telegram.GroupAddress, data ...byte) telegram.Telegram {
	return telegram.NewGroupFrame(telegram.LDataInd, 0x1105, ga, telegram.EncodeAPDU(telegram.APCIWrite, data))
}

// recordingSink stores every record and event it receives.
type recordingSink struct {
	name string
	err  error

	mu      sync.Mutex
	records []Record
	events  []kdrive.EventCode
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Write(_ context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return s.err
}

func (s *recordingSink) WriteEvent(_ context.Context, e kdrive.EventCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) got() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

// plainSink has no WriteEvent.
type plainSink struct {
	write func(r Record) error
}

func (s plainSink) Name() string { return "plain" }

func (s plainSink) Write(_ context.Context, r Record) error { return s.write(r) }
