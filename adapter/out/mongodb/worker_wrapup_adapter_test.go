package mongodb

import (
	"strings"
	"testing"
	"time"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
)

func TestWrapupDocumentCompression(t *testing.T) {
	now := time.Date(2025, 1, 10, 17, 0, 0, 0, time.UTC)
	tests := []struct {
		name           string
		content        string
		wantCompressed bool
	}{
		{"short report stays plain", "3 emails, nothing urgent", false},
		{"long report is compressed", strings.Repeat("- newsletter from x@y.com archived\n", 200), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := &domain.WrapupReport{
				ID: "r1", AccountID: 4, Kind: domain.WrapupEvening, EmailCount: 3,
				Content: tt.content, WindowStart: now.Add(-9 * time.Hour), WindowEnd: now, GeneratedAt: now,
			}
			doc, err := toDocument(report)
			if err != nil {
				t.Fatalf("toDocument() error = %v", err)
			}
			if doc.Compressed != tt.wantCompressed {
				t.Errorf("Compressed = %v, want %v", doc.Compressed, tt.wantCompressed)
			}
			if tt.wantCompressed && len(doc.Content) >= len(tt.content) {
				t.Error("compressed content is not smaller")
			}

			back, err := toEntity(doc)
			if err != nil {
				t.Fatalf("toEntity() error = %v", err)
			}
			if back.Content != tt.content || back.Kind != domain.WrapupEvening || !back.GeneratedAt.Equal(now) {
				t.Errorf("report = %+v", back)
			}
		})
	}
}

func TestCorruptCompressedContent(t *testing.T) {
	if _, err := toEntity(&wrapupDocument{ID: "bad", Content: []byte("not gzip"), Compressed: true}); err == nil {
		t.Error("expected an error for corrupt content")
	}
}
