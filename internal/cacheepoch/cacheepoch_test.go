package cacheepoch

import (
	"testing"
	"time"
)

func TestBucketUnbounded(t *testing.T) {
	epoch, validUntil := Bucket(time.Now(), nil)
	if epoch == nil || *epoch != 0 {
		t.Fatalf("expected epoch 0 for unbounded shelf life, got %v", epoch)
	}
	if !validUntil.After(time.Now().Add(100 * 365 * 24 * time.Hour)) {
		t.Fatalf("expected validUntil far in the future, got %v", validUntil)
	}
}

func TestBucketNeverCache(t *testing.T) {
	zero := time.Duration(0)
	requestTS := time.Now()
	epoch, validUntil := Bucket(requestTS, &zero)
	if epoch != nil {
		t.Fatalf("expected nil epoch for zero shelf life, got %v", *epoch)
	}
	if !validUntil.Equal(requestTS) {
		t.Fatalf("expected validUntil == requestTS, got %v vs %v", validUntil, requestTS)
	}
}

func TestBucketBoundedMath(t *testing.T) {
	shelfLife := 7 * 24 * time.Hour
	requestTS := time.Unix(0, 0).UTC().Add(10 * shelfLife).Add(time.Hour)
	epoch, validUntil := Bucket(requestTS, &shelfLife)
	if epoch == nil || *epoch != 10 {
		t.Fatalf("expected epoch 10, got %v", epoch)
	}
	wantValidUntil := time.Unix(0, 0).UTC().Add(11 * shelfLife)
	if !validUntil.Equal(wantValidUntil) {
		t.Fatalf("expected validUntil %v, got %v", wantValidUntil, validUntil)
	}
}

func TestBucketExpiry(t *testing.T) {
	shelfLife := 7 * 24 * time.Hour
	t0 := time.Unix(0, 0).UTC().Add(3 * shelfLife)
	epoch0, _ := Bucket(t0, &shelfLife)

	tAfter := t0.Add(shelfLife).Add(time.Second)
	epoch1, _ := Bucket(tAfter, &shelfLife)

	if *epoch0 == *epoch1 {
		t.Fatalf("expected a new epoch after shelf_life + 1s, got same epoch %d", *epoch0)
	}
}
