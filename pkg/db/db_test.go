package db

import (
	"context"
	"errors"
	"testing"
)

type widget struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Init(Config{Driver: "sqlite", DSN: "file::memory:"})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := d.AutoMigrate(&widget{}); err != nil {
		t.Fatalf("AutoMigrate failed: %v", err)
	}
	return d
}

func count(t *testing.T, d *DB) int64 {
	t.Helper()
	var n int64
	if err := d.Model(&widget{}).Count(&n).Error; err != nil {
		t.Fatal(err)
	}
	return n
}

func TestInit_UnsupportedDriver(t *testing.T) {
	if _, err := Init(Config{Driver: "oracle"}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestWithTx_CommitAndRollback(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	err := d.WithTx(ctx, func(txCtx context.Context) error {
		return TxFromContext(txCtx, d.DB).Create(&widget{Name: "kept"}).Error
	})
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	boom := errors.New("boom")
	err = d.WithTx(ctx, func(txCtx context.Context) error {
		if err := TxFromContext(txCtx, d.DB).Create(&widget{Name: "dropped"}).Error; err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if n := count(t, d); n != 1 {
		t.Errorf("rows = %d, want 1", n)
	}
}

func TestWithTx_Nested(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	err := d.WithTx(ctx, func(outer context.Context) error {
		return d.WithTx(outer, func(inner context.Context) error {
			return BatchInsert(inner, d.DB, []widget{{Name: "a"}, {Name: "b"}}, 1)
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	if n := count(t, d); n != 2 {
		t.Errorf("rows = %d, want 2", n)
	}

	// 外层回滚时内层写入一并撤销
	boom := errors.New("boom")
	err = d.WithTx(ctx, func(outer context.Context) error {
		if err := d.WithTx(outer, func(inner context.Context) error {
			return TxFromContext(inner, d.DB).Create(&widget{Name: "c"}).Error
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if n := count(t, d); n != 2 {
		t.Errorf("rows after rollback = %d, want 2", n)
	}
}
