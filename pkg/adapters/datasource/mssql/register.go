package mssql

import "github.com/ekaya-inc/datagenie/pkg/adapters/datasource"

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        "sqlserver",
			DisplayName: "Microsoft SQL Server",
			Dialect:     Dialect,
		},
		Open: Open,
	})
}
