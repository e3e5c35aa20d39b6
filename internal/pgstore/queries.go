package pgstore

import (
	"github.com/lib/pq"
	"github.com/whisper/pgsession/internal/migrations"
)

// queries holds every statement the store runs, rendered once from the
// validated schema and table names. Values are always bound parameters.
type queries struct {
	createSchema  string
	createTable   string
	createIndex   string
	tableExists   string
	exists        string
	insertNew     string
	upsert        string
	load          string
	delete        string
	deleteExpired string
}

func buildQueries(schemaName, tableName string) queries {
	schema := pq.QuoteIdentifier(schemaName)
	table := schema + "." + pq.QuoteIdentifier(tableName)
	index := pq.QuoteIdentifier(migrations.Target{Schema: schemaName, Table: tableName}.IndexName())

	return queries{
		createSchema: `create schema if not exists ` + schema,
		createTable: `
			create table if not exists ` + table + `
			(
				id text primary key not null,
				data bytea not null,
				expiry_date timestamptz not null
			)`,
		createIndex: `create index if not exists ` + index + ` on ` + table + ` (expiry_date)`,
		tableExists: `
			select exists(
				select 1 from information_schema.tables
				where table_schema = $1 and table_name = $2
			)`,
		exists: `select exists(select 1 from ` + table + ` where id = $1)`,
		insertNew: `
			insert into ` + table + ` (id, data, expiry_date)
			values ($1, $2, $3)
			on conflict (id) do nothing`,
		upsert: `
			insert into ` + table + ` (id, data, expiry_date)
			values ($1, $2, $3)
			on conflict (id) do update
			set
				data = excluded.data,
				expiry_date = excluded.expiry_date`,
		load: `
			select data from ` + table + `
			where id = $1 and expiry_date > $2`,
		delete:        `delete from ` + table + ` where id = $1`,
		deleteExpired: `delete from ` + table + ` where expiry_date < $1`,
	}
}
