// Package usercache mirrors durable user records into Redis and owns the
// account completeness state machine.
//
// Mirror layout:
//
//	user:<id>                hash of display fields, warningMessage, isIncomplete
//	user:<id>:organizations  set
//	user:<id>:missing.items  set drawn from the missing item vocabulary
//
// Reads are read-through: a miss loads the durable record and repopulates the
// mirror. Durable fields are written to the store first and the mirror is
// rebuilt from the stored record, so the mirror never becomes the only copy
// of a persisted field. Accounts with a required gap (firstName, lastName,
// email or authMethod) exist only in the mirror until Completeness promotes
// them.
package usercache
