package store

import (
	"reflect"
	"testing"

	"github.com/faro-watch/faro/backend/pkg/common"
)

func TestDedupeStrings(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"nil", nil, nil},
		{"empty values dropped", []string{"", "a", ""}, []string{"a"}},
		{"first occurrence kept", []string{"b", "a", "b", "c", "a"}, []string{"b", "a", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DedupeStrings(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DedupeStrings(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestCloneNodeIsDeep(t *testing.T) {
	n := common.GraphNode{AltNames: []string{"a"}, SourceIDs: map[string]string{"x": "1"}}
	c := CloneNode(n)
	c.AltNames[0] = "b"
	c.SourceIDs["x"] = "2"
	if n.AltNames[0] != "a" || n.SourceIDs["x"] != "1" {
		t.Errorf("clone shares state with original: %+v", n)
	}
}

func TestCloneItemIsDeep(t *testing.T) {
	item := common.ReviewQueueItem{
		Issues:        []string{"a"},
		IdentityMatch: &common.IdentityMatch{Score: 90},
	}
	c := CloneItem(item)
	c.Issues[0] = "b"
	c.IdentityMatch.Score = 10
	if item.Issues[0] != "a" || item.IdentityMatch.Score != 90 {
		t.Errorf("clone shares state with original: %+v", item)
	}
}
