package tgui

import "testing"

func TestPaginate(t *testing.T) {
	t.Parallel()
	items := []int{1, 2, 3, 4, 5, 6, 7}
	tests := []struct {
		name      string
		page      int
		wantItems []int
		wantIndex int
		prev      bool
		next      bool
	}{
		{name: "first", page: 0, wantItems: []int{1, 2, 3}, wantIndex: 0, next: true},
		{name: "middle", page: 1, wantItems: []int{4, 5, 6}, wantIndex: 1, prev: true, next: true},
		{name: "last", page: 2, wantItems: []int{7}, wantIndex: 2, prev: true},
		{name: "clamped", page: 9, wantItems: []int{7}, wantIndex: 2, prev: true},
		{name: "negative", page: -1, wantItems: []int{1, 2, 3}, wantIndex: 0, next: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Paginate(items, tt.page, 3)
			if len(got.Items) != len(tt.wantItems) {
				t.Fatalf("Items = %v, want %v", got.Items, tt.wantItems)
			}
			for i := range got.Items {
				if got.Items[i] != tt.wantItems[i] {
					t.Fatalf("Items = %v, want %v", got.Items, tt.wantItems)
				}
			}
			if got.Index != tt.wantIndex || got.HasPrev != tt.prev || got.HasNext != tt.next {
				t.Fatalf("page = %+v, want index=%d prev=%v next=%v", got, tt.wantIndex, tt.prev, tt.next)
			}
			if got.Pages != 3 {
				t.Fatalf("Pages = %d, want 3", got.Pages)
			}
		})
	}
}

func TestPaginateEmpty(t *testing.T) {
	t.Parallel()
	got := Paginate([]string(nil), 3, 5)
	if len(got.Items) != 0 || got.HasNext || got.HasPrev || got.Pages != 1 {
		t.Fatalf("empty page = %+v", got)
	}
}

func TestData(t *testing.T) {
	t.Parallel()
	s, err := Data("r", "del", "42")
	if err != nil || s != "r:del:42" {
		t.Fatalf("Data = %q, %v", s, err)
	}
	if parts := SplitData(s); len(parts) != 3 || parts[2] != "42" {
		t.Fatalf("SplitData = %v", parts)
	}
	long := make([]byte, MaxCallbackDataLen)
	if _, err := Data(string(long), "x"); err != ErrCallbackDataTooLong {
		t.Fatalf("Data(long) err = %v, want ErrCallbackDataTooLong", err)
	}
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	if got := TruncRunes("привет мир", 4); got != "при…" {
		t.Fatalf("TruncRunes = %q", got)
	}
	if got := TruncRunes("chat", 10); got != "chat" {
		t.Fatalf("TruncRunes(short) = %q", got)
	}
}
