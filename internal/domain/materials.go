package domain

// MaterialPriority returns the fixed workshop listing rank for a material
// type. Listings order by this rank first, then by inner and outer diameter
// ascending. Unknown types sort last.
func MaterialPriority(materialType string) int {
	switch materialType {
	case MaterialBUR:
		return 1
	case MaterialNBR:
		return 2
	case MaterialBT:
		return 3
	case MaterialBOOM:
		return 4
	case MaterialVT:
		return 5
	default:
		return 6
	}
}
