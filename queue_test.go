package mabain

import "testing"

func newTestQueue(t *testing.T, size int) *cmdQueue {
	t.Helper()
	dir := t.TempDir()
	header, _, err := openHeaderFile(dir, true)
	if err != nil {
		t.Fatalf("openHeaderFile: %v", err)
	}
	header.initialize(false)
	t.Cleanup(func() { header.close() })

	q, err := openCmdQueue(dir, false, size, header, true)
	if err != nil {
		t.Fatalf("openCmdQueue: %v", err)
	}
	t.Cleanup(func() { q.close() })
	return q
}

func TestQueueEnqueueDequeueRoundTrip(t *testing.T) {
	q := newTestQueue(t, 4)

	if err := q.Enqueue(cmdAdd, []byte("key"), []byte("value")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	cmd, ok := q.Dequeue()
	if !ok {
		t.Fatalf("Dequeue: got no command")
	}
	if cmd.typ != cmdAdd || string(cmd.key) != "key" || string(cmd.val) != "value" {
		t.Fatalf("Dequeue: got %+v", cmd)
	}

	q.Release(cmd)

	if _, ok := q.Dequeue(); ok {
		t.Fatalf("Dequeue after Release: got another command, want none")
	}
}

func TestQueueDequeueEmptyReturnsFalse(t *testing.T) {
	q := newTestQueue(t, 4)
	if _, ok := q.Dequeue(); ok {
		t.Fatalf("Dequeue on empty queue: got a command, want none")
	}
}

func TestQueueEnqueueRejectsOversizedKey(t *testing.T) {
	q := newTestQueue(t, 4)
	bigKey := make([]byte, cmdKeyCap+1)
	if err := q.Enqueue(cmdAdd, bigKey, nil); err == nil {
		t.Fatalf("Enqueue with oversized key: got nil error, want failure")
	}
}

func TestQueuePreservesFIFOOrderAcrossMultipleSlots(t *testing.T) {
	q := newTestQueue(t, 4)

	for i := 0; i < 3; i++ {
		key := []byte{byte('a' + i)}
		if err := q.Enqueue(cmdAdd, key, nil); err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
	}

	for i := 0; i < 3; i++ {
		cmd, ok := q.Dequeue()
		if !ok {
			t.Fatalf("Dequeue %d: got no command", i)
		}
		want := string([]byte{byte('a' + i)})
		if string(cmd.key) != want {
			t.Fatalf("Dequeue %d: got key %q, want %q", i, cmd.key, want)
		}
		q.Release(cmd)
	}
}
