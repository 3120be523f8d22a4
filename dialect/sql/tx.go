package sql

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// TxState is the state of a transaction.
type TxState int

// Transaction states.
const (
	TxActive TxState = iota
	TxCommitted
	TxRolledBack
)

// String returns the state name.
func (s TxState) String() string {
	switch s {
	case TxActive:
		return "active"
	case TxCommitted:
		return "committed"
	case TxRolledBack:
		return "rolled back"
	}
	return fmt.Sprintf("TxState(%d)", int(s))
}

// Tx is a transaction started by Conn.BeginTx. Commands created from the
// connection run inside the transaction while it is current.
type Tx struct {
	id    uuid.UUID
	conn  *Conn
	tx    *sql.Tx
	state TxState
}

func newTx(c *Conn, tx *sql.Tx) *Tx {
	return &Tx{id: uuid.New(), conn: c, tx: tx, state: TxActive}
}

// ID returns the identifier used in log entries of the transaction.
func (t *Tx) ID() string { return t.id.String() }

// Conn returns the connection the transaction belongs to.
func (t *Tx) Conn() *Conn { return t.conn }

// State returns the state of the transaction.
func (t *Tx) State() TxState { return t.state }

// Active reports whether the transaction is the active transaction of its
// connection. A transaction superseded by a later BeginTx is not active.
func (t *Tx) Active() bool {
	return t.state == TxActive && t.conn.tx == t
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if !t.Active() {
		return &TxStateError{Op: "commit", Msg: "transaction is inactive and cannot perform commit"}
	}
	t.conn.log.WithField("tx", t.ID()).Debug("committing transaction")
	if err := t.tx.Commit(); err != nil {
		t.state = TxRolledBack
		return fmt.Errorf("dialect/sql: commit transaction: %w", err)
	}
	t.state = TxCommitted
	return nil
}

// Rollback rolls back the transaction.
func (t *Tx) Rollback() error {
	if !t.Active() {
		return &TxStateError{Op: "rollback", Msg: "transaction is inactive and cannot perform rollback"}
	}
	t.conn.log.WithField("tx", t.ID()).Debug("rolling back transaction")
	t.state = TxRolledBack
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("dialect/sql: rollback transaction: %w", err)
	}
	return nil
}
