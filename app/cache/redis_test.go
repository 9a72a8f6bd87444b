package cache

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestResponseKey(t *testing.T) {
	key1a := ResponseKey("dataset", "data_gov", "abc-123")
	key1b := ResponseKey("dataset", "data_gov", "abc-123")
	key2 := ResponseKey("dataset", "data_gov", "abc-124")

	if key1a != key1b {
		t.Errorf("Expected same key for same request, got %s != %s", key1a, key1b)
	}
	if key1a == key2 {
		t.Errorf("Expected different keys for different datasets, but got same: %s", key1a)
	}

	expectedPrefix := "dataset:data_gov:"
	if !strings.HasPrefix(key1a, expectedPrefix) {
		t.Errorf("Expected key to start with %s, got %s", expectedPrefix, key1a)
	}
	if len(key1a) != len(expectedPrefix)+16 {
		t.Errorf("Expected 8 byte hash suffix, got %s", key1a)
	}
}

func TestResponseKeySeparatesParts(t *testing.T) {
	if ResponseKey("search", "census", "ab", "c") == ResponseKey("search", "census", "a", "bc") {
		t.Error("Expected part boundaries to affect the key")
	}
	if ResponseKey("search", "census", "x") == ResponseKey("search", "data_gov", "x") {
		t.Error("Expected source to affect the key")
	}
}

func TestNewCacheUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewCache(ctx, "127.0.0.1:1")
	if err == nil {
		t.Fatal("Expected error connecting to unreachable Redis")
	}
	if !strings.Contains(err.Error(), "failed to connect to Redis") {
		t.Errorf("Unexpected error: %v", err)
	}
}
