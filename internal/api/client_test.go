package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetPackage(t *testing.T) {
	ident := PackageIdent{Author: "facepunch", Name: "construct"}

	t.Run("success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/package/get/facepunch.construct" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"Version": {
					"ManifestUrl": "https://cdn.example/manifest.json",
					"Meta": "{\"PrimaryAsset\":\"models/foo.vmdl\"}"
				}
			}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, server.Client())
		descriptor, err := client.GetPackage(context.Background(), ident)
		if err != nil {
			t.Fatalf("GetPackage() error = %v", err)
		}
		if descriptor.Version.ManifestUrl != "https://cdn.example/manifest.json" {
			t.Errorf("ManifestUrl = %q", descriptor.Version.ManifestUrl)
		}
		meta, ok := descriptor.DecodeMeta()
		if !ok || meta.PrimaryAsset != "models/foo.vmdl" {
			t.Errorf("DecodeMeta() = %+v, %v", meta, ok)
		}
	})

	t.Run("trailing slash normalized", func(t *testing.T) {
		client := NewClient("https://services.example/sbox///", nil)
		want := "https://services.example/sbox/package/get/facepunch.construct"
		if got := client.LookupURL(ident); got != want {
			t.Errorf("LookupURL() = %q, want %q", got, want)
		}
	})

	t.Run("transport error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close()

		client := NewClient(server.URL, http.DefaultClient)
		_, err := client.GetPackage(context.Background(), ident)
		if !errors.Is(err, ErrDescriptorFetch) {
			t.Fatalf("error = %v, want ErrDescriptorFetch", err)
		}
	})

	t.Run("non-success status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		client := NewClient(server.URL, server.Client())
		_, err := client.GetPackage(context.Background(), ident)
		if !errors.Is(err, ErrDescriptorFetch) {
			t.Fatalf("error = %v, want ErrDescriptorFetch", err)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{not json`))
		}))
		defer server.Close()

		client := NewClient(server.URL, server.Client())
		_, err := client.GetPackage(context.Background(), ident)
		if !errors.Is(err, ErrDescriptorParse) {
			t.Fatalf("error = %v, want ErrDescriptorParse", err)
		}
	})
}
