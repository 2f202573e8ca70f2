package enums

// InventoryStatus tracks the lifecycle of a one-of-a-kind thrift item.
// Transitions only move forward: AVAILABLE -> RESERVED -> SOLD.
type InventoryStatus string

const (
	InventoryStatusAvailable InventoryStatus = "AVAILABLE"
	InventoryStatusReserved  InventoryStatus = "RESERVED"
	InventoryStatusSold      InventoryStatus = "SOLD"
)

func (s InventoryStatus) Valid() bool {
	switch s {
	case InventoryStatusAvailable, InventoryStatusReserved, InventoryStatusSold:
		return true
	}
	return false
}
