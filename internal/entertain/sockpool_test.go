package entertain

import "testing"

func TestSocketPoolLifecycle(t *testing.T) {
	p := NewSocketPool(32768)

	if p.Size() != 0 {
		t.Fatalf("new pool size = %d, want 0", p.Size())
	}

	// First send lazily creates the host's socket; repeats reuse it.
	if err := p.Send("127.0.0.1", 21324, []byte{1, 2, 3}); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if err := p.Send("127.0.0.1", 21324, []byte{4, 5, 6}); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if p.Size() != 1 {
		t.Errorf("pool size = %d, want 1", p.Size())
	}

	if err := p.Send("127.0.0.1:9999", 2100, []byte{7}); err != nil {
		t.Fatalf("Send() with host:port key error: %v", err)
	}
	if p.Size() != 2 {
		t.Errorf("pool size = %d, want 2", p.Size())
	}

	p.Close()
	if p.Size() != 0 {
		t.Errorf("pool size after Close = %d, want 0", p.Size())
	}
	if err := p.Send("127.0.0.1", 21324, []byte{1}); err == nil {
		t.Error("Send() after Close should fail")
	}

	// Close is idempotent.
	p.Close()
}
