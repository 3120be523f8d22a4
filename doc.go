// Package sqlkit loads named database connections from a YAML file.
//
// The connection, schema and command building machinery lives in
// package dialect/sql; this package only maps a configuration file onto it:
//
//	f, err := sqlkit.LoadConfig("sqlkit.yaml")
//	if err != nil {
//		return err
//	}
//	defer f.Close()
//	db, err := f.Conn(ctx, "main")
//	if err != nil {
//		return err
//	}
//	rows, err := db.CreateCommand("SELECT * FROM users WHERE id=:id").Bind("id", 1).QueryAll(ctx)
package sqlkit
