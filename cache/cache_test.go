package cache

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"
	"time"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newClock() *clock { return &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)} }

func TestSetGet(t *testing.T) {
	c := New(Config{})
	if _, ok := c.Get("missing"); ok {
		t.Fatal("hit on empty cache")
	}
	c.Set("a", []byte("alpha"))
	got, ok := c.Get("a")
	if !ok || string(got) != "alpha" {
		t.Fatalf("Get = %q, %v", got, ok)
	}
	got[0] = 'X'
	if again, _ := c.Get("a"); string(again) != "alpha" {
		t.Error("Get returned the stored slice")
	}
	e, _ := c.Entry("a")
	if e.AccessCount != 2 || e.SizeBytes != 5 || e.Compressed {
		t.Errorf("entry = %+v", e)
	}

	c.Set("a", []byte("longer value"))
	if c.Len() != 1 || c.Size() != 12 {
		t.Errorf("after replace Len = %d Size = %d", c.Len(), c.Size())
	}
	if !c.Delete("a") || c.Delete("a") || c.Size() != 0 {
		t.Error("Delete bookkeeping")
	}
	s := c.Stats()
	if s.Hits != 2 || s.Misses != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestCompression(t *testing.T) {
	c := New(Config{Threshold: 64})
	compressible := bytes.Repeat([]byte("overpaint "), 100)
	c.Set("big", compressible)
	e, _ := c.Entry("big")
	if !e.Compressed || e.SizeBytes >= int64(len(compressible)) || e.SizeBytes != int64(len(e.Payload)) {
		t.Fatalf("entry = compressed %v size %d", e.Compressed, e.SizeBytes)
	}
	if c.Size() != e.SizeBytes {
		t.Errorf("Size = %d, want %d", c.Size(), e.SizeBytes)
	}
	got, ok := c.Get("big")
	if !ok || !bytes.Equal(got, compressible) {
		t.Fatal("compressed round trip failed")
	}

	small := bytes.Repeat([]byte("a"), 64)
	c.Set("small", small)
	if e, _ := c.Entry("small"); e.Compressed {
		t.Error("value at threshold compressed")
	}

	noise := make([]byte, 4096)
	rand.New(rand.NewSource(1)).Read(noise)
	c.Set("noise", noise)
	if e, _ := c.Entry("noise"); e.Compressed || e.SizeBytes != 4096 {
		t.Errorf("incompressible value stored compressed=%v size=%d", e.Compressed, e.SizeBytes)
	}
}

func TestTTL(t *testing.T) {
	clk := newClock()
	c := New(Config{TTL: time.Minute, Clock: clk.Now})
	c.Set("a", []byte("1"))
	clk.now = clk.now.Add(30 * time.Second)
	c.Set("b", []byte("2"))
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a expired early")
	}
	// access does not extend the lifetime
	clk.now = clk.now.Add(31 * time.Second)
	if _, ok := c.Get("a"); ok {
		t.Fatal("a outlived its ttl")
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d after expiry", c.Len())
	}

	clk.now = clk.now.Add(time.Minute)
	c.Set("c", []byte("3"))
	if c.Len() != 1 || c.Stats().Expired != 2 {
		t.Errorf("expired entries not evicted on Set: len %d stats %+v", c.Len(), c.Stats())
	}
}

func TestEvictionBySize(t *testing.T) {
	clk := newClock()
	c := New(Config{MaxSize: 100, Clock: clk.Now})
	value := bytes.Repeat([]byte{'x'}, 30)
	for i := 0; i < 3; i++ {
		clk.now = clk.now.Add(time.Second)
		c.Set(fmt.Sprint(i), value)
	}
	c.Get("0")
	before := c.Len()
	clk.now = clk.now.Add(time.Second)
	c.Set("3", value)
	if c.Size() > 100 {
		t.Fatalf("Size = %d exceeds max", c.Size())
	}
	if c.Len() >= before+1 {
		t.Errorf("Len = %d, want an eviction", c.Len())
	}
	// "0" was read, "1" is the oldest unread entry
	if _, ok := c.Entry("1"); ok {
		t.Error("least recently used entry survived")
	}
	if _, ok := c.Entry("0"); !ok {
		t.Error("accessed entry evicted")
	}

	c.Set("huge", bytes.Repeat([]byte{'y'}, 101))
	if _, ok := c.Entry("huge"); ok || c.Size() > 100 {
		t.Error("value above MaxSize stored")
	}
}

func TestEvictionByCount(t *testing.T) {
	c := New(Config{MaxEntries: 3})
	for i := 0; i < 10; i++ {
		c.Set(fmt.Sprint(i), []byte{byte(i)})
		if c.Len() > 3 {
			t.Fatalf("Len = %d after %d sets", c.Len(), i+1)
		}
	}
	if c.Stats().Evictions != 7 {
		t.Errorf("evictions = %d, want 7", c.Stats().Evictions)
	}
}

func TestSizeNeverExceedsMax(t *testing.T) {
	r := rand.New(rand.NewSource(9))
	c := New(Config{MaxSize: 4096, MaxEntries: 50, Threshold: 256})
	for i := 0; i < 2000; i++ {
		v := make([]byte, r.Intn(1500))
		if r.Intn(2) == 0 {
			r.Read(v)
		}
		c.Set(fmt.Sprint(r.Intn(200)), v)
		if r.Intn(3) == 0 {
			c.Get(fmt.Sprint(r.Intn(200)))
		}
		if c.Size() > 4096 || c.Len() > 50 {
			t.Fatalf("step %d: size %d len %d", i, c.Size(), c.Len())
		}
	}
}

func TestKey(t *testing.T) {
	a := Key(1, []byte("x"), []byte("y"))
	if len(a) != 64 {
		t.Fatalf("key length = %d", len(a))
	}
	if a != Key(1, []byte("x"), []byte("y")) {
		t.Error("Key not deterministic")
	}
	for _, other := range []string{
		Key(2, []byte("x"), []byte("y")),
		Key(1, []byte("xy")),
		Key(1, []byte("x"), []byte("y"), nil),
	} {
		if other == a {
			t.Errorf("collision with %s", other)
		}
	}
}
