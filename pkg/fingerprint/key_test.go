package fingerprint

import (
	"net/url"
	"strings"
	"testing"
)

func TestKey_Deterministic(t *testing.T) {
	a, _ := url.ParseQuery("paged=2&lang=en")
	b, _ := url.ParseQuery("lang=en&paged=2")

	keyA := Key{Identity: "default", Format: "rss2", Params: a}.String()
	keyB := Key{Identity: "default", Format: "rss2", Params: b}.String()

	if keyA != keyB {
		t.Errorf("parameter order changed the key: %q vs %q", keyA, keyB)
	}
}

func TestKey_UnrecognizedParamsExcluded(t *testing.T) {
	clean, _ := url.ParseQuery("paged=1")
	tracked, _ := url.ParseQuery("paged=1&utm_source=newsletter&fbclid=xyz")

	keyClean := Key{Identity: "default", Format: "rss2", Params: clean}.String()
	keyTracked := Key{Identity: "default", Format: "rss2", Params: tracked}.String()

	if keyClean != keyTracked {
		t.Errorf("tracking params leaked into key: %q vs %q", keyClean, keyTracked)
	}
}

func TestKey_ExtraRecognized(t *testing.T) {
	params, _ := url.ParseQuery("category=golang")

	without := Key{Identity: "custom:dev", Format: "atom", Params: params}.String()
	with := Key{
		Identity:        "custom:dev",
		Format:          "atom",
		Params:          params,
		ExtraRecognized: []string{"category"},
	}.String()

	if without == with {
		t.Error("whitelisted param should contribute to the key")
	}
	if !strings.Contains(with, "category=golang") {
		t.Errorf("key missing whitelisted param: %q", with)
	}
}

func TestKey_DistinctVariants(t *testing.T) {
	keys := map[string]bool{}
	for _, k := range []Key{
		{Identity: "default", Format: "rss2"},
		{Identity: "default", Format: "atom"},
		{Identity: "default", Format: "json"},
		{Identity: "custom:podcast", Format: "rss2"},
	} {
		s := k.String()
		if keys[s] {
			t.Errorf("duplicate key %q", s)
		}
		keys[s] = true
	}
}

func TestKey_MultiValueParams(t *testing.T) {
	a, _ := url.ParseQuery("lang=en&lang=de")
	b, _ := url.ParseQuery("lang=de&lang=en")

	keyA := Key{Identity: "default", Format: "rss2", Params: a}.String()
	keyB := Key{Identity: "default", Format: "rss2", Params: b}.String()

	if keyA != keyB {
		t.Errorf("multi-value order changed the key: %q vs %q", keyA, keyB)
	}
}

func TestKey_Recognized(t *testing.T) {
	params, _ := url.ParseQuery("paged=2&utm_source=x&tag=go")
	key := Key{Identity: "default", Format: "rss2", Params: params, ExtraRecognized: []string{"tag"}}

	got := key.Recognized()
	if got["paged"] != "2" || got["tag"] != "go" {
		t.Errorf("Recognized() = %v, want paged=2 and tag=go", got)
	}
	if _, ok := got["utm_source"]; ok {
		t.Error("tracking parameter survived the whitelist")
	}

	if empty := (Key{Identity: "default", Format: "rss2"}).Recognized(); empty != nil {
		t.Errorf("Recognized() with no params = %v, want nil", empty)
	}
}
