package cache

import (
	"reflect"
	"testing"

	"maildigest/core/domain"
)

func TestScopePatterns(t *testing.T) {
	tests := []struct {
		name  string
		scope domain.StoreEventScope
		want  []string
	}{
		{
			name:  "new email dirties lists and stats",
			scope: domain.ScopeNewEmail,
			want:  []string{"emails:user:42:*", "stats:user:42:*"},
		},
		{
			name:  "delete email dirties lists and stats",
			scope: domain.ScopeDeleteEmail,
			want:  []string{"emails:user:42:*", "stats:user:42:*"},
		},
		{
			name:  "new digest",
			scope: domain.ScopeNewDigest,
			want:  []string{"digests:user:42:*", "stats:user:42:*"},
		},
		{
			name:  "config change",
			scope: domain.ScopeConfigChange,
			want:  []string{"config:user:42:*"},
		},
		{
			name:  "all namespaces",
			scope: domain.ScopeAll,
			want:  []string{"emails:user:42:*", "stats:user:42:*", "digests:user:42:*", "config:user:42:*"},
		},
		{
			name:  "unknown scope is a no-op",
			scope: domain.StoreEventScope("bogus"),
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scopePatterns(42, tt.scope)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("scopePatterns = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestInvalidateNilClient covers the degraded mode where Redis is not
// configured.
func TestInvalidateNilClient(t *testing.T) {
	inv := NewInvalidator(nil)
	inv.Subscribe().Publish(domain.StoreEvent{UserID: 1, Scope: domain.ScopeNewEmail})
}
