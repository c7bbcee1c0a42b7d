package authn

import (
	"testing"
	"time"
)

func TestCacheGetPut(t *testing.T) {
	c := NewSessionCache(time.Minute)
	p := Principal{InstitutionID: "inst-1", Email: "a@b.co", Role: "owner"}

	if _, ok := c.Get("tok"); ok {
		t.Fatal("empty cache returned an entry")
	}
	c.Put("tok", p, time.Now().Add(time.Hour))
	got, ok := c.Get("tok")
	if !ok || got.InstitutionID != "inst-1" {
		t.Fatalf("cache miss after put: %+v ok=%v", got, ok)
	}
}

func TestCacheEntryCappedByTokenExpiry(t *testing.T) {
	c := NewSessionCache(time.Hour)
	now := time.Now()
	c.now = func() time.Time { return now }

	// token expires long before the cache ttl would
	c.Put("tok", Principal{Email: "a@b.co"}, now.Add(time.Second))

	now = now.Add(2 * time.Second)
	if _, ok := c.Get("tok"); ok {
		t.Fatal("entry served past token expiry")
	}
}

func TestCacheSkipsExpiredTokens(t *testing.T) {
	c := NewSessionCache(time.Minute)
	c.Put("tok", Principal{Email: "a@b.co"}, time.Now().Add(-time.Second))
	if c.Len() != 0 {
		t.Fatal("cached a resolution for an already expired token")
	}
}

func TestCacheInvalidateEmail(t *testing.T) {
	c := NewSessionCache(time.Minute)
	exp := time.Now().Add(time.Hour)
	c.Put("tok1", Principal{Email: "member@x.co", InstitutionID: "inst-1"}, exp)
	c.Put("tok2", Principal{Email: "Member@X.co", InstitutionID: "inst-1"}, exp)
	c.Put("tok3", Principal{Email: "other@x.co", InstitutionID: "inst-1"}, exp)

	c.InvalidateEmail("MEMBER@x.co")

	if _, ok := c.Get("tok1"); ok {
		t.Fatal("tok1 survived email invalidation")
	}
	if _, ok := c.Get("tok2"); ok {
		t.Fatal("tok2 survived case-insensitive email invalidation")
	}
	if _, ok := c.Get("tok3"); !ok {
		t.Fatal("unrelated entry was dropped")
	}
}

func TestCacheInvalidateInstitution(t *testing.T) {
	c := NewSessionCache(time.Minute)
	exp := time.Now().Add(time.Hour)
	c.Put("tok1", Principal{Email: "a@x.co", InstitutionID: "inst-1"}, exp)
	c.Put("tok2", Principal{Email: "b@x.co", InstitutionID: "inst-2"}, exp)

	c.InvalidateInstitution("inst-1")

	if _, ok := c.Get("tok1"); ok {
		t.Fatal("inst-1 entry survived invalidation")
	}
	if _, ok := c.Get("tok2"); !ok {
		t.Fatal("inst-2 entry was dropped")
	}
}
