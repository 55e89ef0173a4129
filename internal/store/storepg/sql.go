package storepg

const (
	StateTableName   = "strom_table_state"
	OffsetsTableName = "strom_changelog_offsets"
)

const (
	CreateStateTableQuery = `
	create table if not exists strom_table_state (
	    table_name text not null,
	    partition int not null,
	    key bytea not null,
	    value bytea not null,
	    updated_at timestamp not null default now(),
	    primary key (table_name, partition, key)
	)
`
	CreateOffsetsTableQuery = `
	create table if not exists strom_changelog_offsets (
	    table_name text not null,
	    topic text not null,
	    partition int not null,
	    last_offset bigint not null,
	    primary key (table_name, topic, partition)
	)
`
)

const (
	UpsertStateQuery = `
	insert into strom_table_state (table_name, partition, key, value, updated_at)
	values ($1, $2, $3, $4, now())
	on conflict (table_name, partition, key)
	do update set value = excluded.value, updated_at = now()
`
	UpsertOffsetQuery = `
	insert into strom_changelog_offsets (table_name, topic, partition, last_offset)
	values ($1, $2, $3, $4)
	on conflict (table_name, topic, partition)
	do update set last_offset = excluded.last_offset
`
)
