package tier

// Tier is a named (dimension, cost) bracket for image generation.
type Tier string

const (
	Trial    Tier = "trial"
	Standard Tier = "standard"
	HD       Tier = "hd"
	Ultra    Tier = "ultra"
)

type bracket struct {
	width, height int
	tier          Tier
	cost          int64
}

// Exactly four square sizes are sold. Anything else is rejected, not rounded.
var brackets = []bracket{
	{800, 800, Trial, 0},
	{1024, 1024, Standard, 1},
	{2048, 2048, HD, 2},
	{4096, 4096, Ultra, 4},
}

// Resolve maps the requested dimensions to a tier and its credit cost.
// ok is false for any pair outside the four supported sizes.
func Resolve(width, height int) (t Tier, cost int64, ok bool) {
	for _, b := range brackets {
		if b.width == width && b.height == height {
			return b.tier, b.cost, true
		}
	}
	return "", 0, false
}

// IsValidSize reports whether the dimensions match a supported bracket.
func IsValidSize(width, height int) bool {
	_, _, ok := Resolve(width, height)
	return ok
}
