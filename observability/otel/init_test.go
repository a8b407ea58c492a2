package otel

import (
	"context"
	"reflect"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" authorization = Bearer abc ,x-tenant=pool-1,broken, =nokey,,")
	want := map[string]string{"authorization": "Bearer abc", "x-tenant": "pool-1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("headers = %v, want %v", got, want)
	}
	if keys := HeaderKeys(got); !reflect.DeepEqual(keys, []string{"authorization", "x-tenant"}) {
		t.Fatalf("keys = %v", keys)
	}
}

func TestInitRequiresServiceName(t *testing.T) {
	if _, err := Init(context.Background(), Config{ServiceName: " "}); err == nil {
		t.Fatalf("expected error without service name")
	}
}

func TestInitWithoutExporters(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{
		ServiceName: "vaultrisk-test",
		Attributes:  map[string]string{"vaultrisk.vault0": "0xa0"},
	})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
