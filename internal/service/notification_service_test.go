package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []string
	topic []string
}

func (n *recordingNotifier) Notify(ctx context.Context, topic, userID, message string, count int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, userID)
	n.topic = append(n.topic, topic)
	return nil
}

func (n *recordingNotifier) recipients() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.sent))
	copy(out, n.sent)
	return out
}

type mockCohortRoster struct {
	ids map[string][]string
}

func (m *mockCohortRoster) ListIDsByCohort(ctx context.Context, cohort string) ([]string, error) {
	return m.ids[cohort], nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Fail(t, "condition not met in time")
}

func TestNotificationServiceNotifyStudent(t *testing.T) {
	notifier := &recordingNotifier{}
	svc := NewNotificationService(notifier, &mockCohortRoster{}, 1, 8, nil)
	svc.Start(context.Background())
	defer svc.Stop()

	svc.NotifyStudent("subject_removed", "stu-1", "Mata kuliah dibatalkan", 1)

	waitFor(t, func() bool { return len(notifier.recipients()) == 1 })
	assert.Equal(t, []string{"stu-1"}, notifier.recipients())
}

func TestNotificationServiceBroadcastCohort(t *testing.T) {
	notifier := &recordingNotifier{}
	roster := &mockCohortRoster{ids: map[string][]string{"2024": {"stu-1", "stu-2", "stu-3"}}}
	svc := NewNotificationService(notifier, roster, 2, 8, nil)
	svc.Start(context.Background())
	defer svc.Stop()

	svc.BroadcastCohort("subject_activated", "2024", "KRS dibuka", 1)

	waitFor(t, func() bool { return len(notifier.recipients()) == 3 })
	assert.ElementsMatch(t, []string{"stu-1", "stu-2", "stu-3"}, notifier.recipients())
}
