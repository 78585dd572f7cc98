package dialect

// GetTarget returns the Target implementation for a driver name.
func GetTarget(driver string) Target {
	switch driver {
	case "mysql":
		return &MysqlTarget{}
	case "sqlserver", "mssql":
		return &MSSQLTarget{}
	case "oracle":
		return &OracleTarget{}
	default: // postgres
		return &PostgresTarget{}
	}
}

// GetSource returns the Source implementation for a driver name. Only the
// FileMaker ODBC bridge is implemented today.
func GetSource(driver string) Source {
	return &FileMakerSource{}
}

// Ensure interface implementation
var _ Target = (*PostgresTarget)(nil)
var _ Target = (*MysqlTarget)(nil)
var _ Target = (*MSSQLTarget)(nil)
var _ Target = (*OracleTarget)(nil)
var _ Source = (*FileMakerSource)(nil)
