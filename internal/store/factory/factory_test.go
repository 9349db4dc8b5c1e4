package factory

import (
	"path/filepath"
	"testing"

	"github.com/loykin/craftd/internal/store/sqlite"
)

func TestNewFromDSN(t *testing.T) {
	if _, err := NewFromDSN(""); err == nil {
		t.Fatal("empty DSN must fail")
	}

	path := filepath.Join(t.TempDir(), "craftd.db")
	st, err := NewFromDSN("sqlite://" + path)
	if err != nil {
		t.Fatalf("sqlite scheme: %v", err)
	}
	if _, ok := st.(*sqlite.DB); !ok {
		t.Fatalf("want sqlite store, got %T", st)
	}
	_ = st.Close()

	st, err = NewFromDSN(path)
	if err != nil {
		t.Fatalf("bare path: %v", err)
	}
	if _, ok := st.(*sqlite.DB); !ok {
		t.Fatalf("want sqlite store for bare path, got %T", st)
	}
	_ = st.Close()
}
