// Package txscope implements ambient, nestable transaction scopes.
//
// A scope is entered with Enter and carried by the returned context. Data
// providers call Enlist before executing a command: inside a scope the
// command runs in the scope's transaction for its connection string, one
// physical transaction per distinct connection string, and outside a scope
// it runs on its own auto-commit connection.
//
// Scopes created with Required share the transactions of the enclosing
// scope. The transactions commit when the outermost sharing scope
// completes, and any sharing scope that closes without completing rolls
// all of them back. RequiresNew starts independent transactions and
// Suppress runs enlisted commands outside any transaction.
package txscope
