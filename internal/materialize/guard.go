package materialize

import "github.com/RoaringBitmap/roaring/roaring64"

// Guard tracks the directories entered during one subtree walk.
// Visit returns false when id was already entered, which means the
// record index is not a tree.
type Guard interface {
	Visit(id int64) bool
}

type bitmapGuard struct {
	seen *roaring64.Bitmap
}

// NewBitmapGuard returns the default Guard, backed by a roaring bitmap.
func NewBitmapGuard() Guard {
	return &bitmapGuard{seen: roaring64.New()}
}

func (g *bitmapGuard) Visit(id int64) bool {
	u := uint64(id)
	if g.seen.Contains(u) {
		return false
	}
	g.seen.Add(u)
	return true
}
