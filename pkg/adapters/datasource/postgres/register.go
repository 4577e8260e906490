package postgres

import "github.com/ekaya-inc/datagenie/pkg/adapters/datasource"

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        "postgres",
			DisplayName: "PostgreSQL",
			Dialect:     Dialect,
		},
		Open: Open,
	})
}
