// Package testdb provides database helpers for integration tests: locating
// the test database, applying the embedded migrations, and running each test
// inside a transaction that is always rolled back.
//
// Integration tests are gated by the integration build tag and skip when no
// database URL is configured:
//
//	func TestSomething(t *testing.T) {
//		db := testdb.GetTestDBWithT(t)
//		testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
//			// use tx
//		})
//	}
package testdb
