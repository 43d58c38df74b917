package model

import "fmt"

// EntityType identifies the kind of business record a mutation targets.
// The set is closed: adding a type means extending the switch statements
// that dispatch on it, which the compiler will point out.
type EntityType string

const (
	EntitySale     EntityType = "sale"
	EntityProduct  EntityType = "product"
	EntityExpense  EntityType = "expense"
	EntityCustomer EntityType = "customer"
)

// EntityTypes lists every known entity type in a stable order.
var EntityTypes = []EntityType{
	EntitySale,
	EntityProduct,
	EntityExpense,
	EntityCustomer,
}

// Valid reports whether t is one of the known entity types.
func (t EntityType) Valid() bool {
	switch t {
	case EntitySale, EntityProduct, EntityExpense, EntityCustomer:
		return true
	}
	return false
}

// Operation is the kind of write a mutation performs against the backend.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Valid reports whether op is one of the known operations.
func (op Operation) Valid() bool {
	switch op {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// ValidateMutation checks that the entity type and operation form a
// well-formed mutation target.
func ValidateMutation(t EntityType, op Operation) error {
	if !t.Valid() {
		return fmt.Errorf("unknown entity type %q", t)
	}
	if !op.Valid() {
		return fmt.Errorf("unknown operation %q", op)
	}
	return nil
}
