package pgstore

// Schema is the DDL for the tables Store reads and writes.
const Schema = `
create table if not exists guard_subjects (
	id              text primary key,
	username        text not null unique,
	email           text not null default '',
	created_at      timestamptz not null default now(),
	is_admin        boolean not null default false,
	is_staff        boolean not null default false,
	is_active       boolean not null default true,
	banned_until    timestamptz,
	credential_hash text not null default ''
);

create table if not exists guard_activity (
	id         text primary key,
	subject_id text not null,
	at         timestamptz not null
);
create index if not exists guard_activity_subject_at on guard_activity (subject_id, at);

create table if not exists guard_activity_totals (
	subject_id text primary key,
	total      bigint not null default 0
);

create table if not exists guard_recovery (
	subject_id text primary key,
	token_hash bytea not null unique,
	expires_at timestamptz not null
);
create index if not exists guard_recovery_expires on guard_recovery (expires_at);
`
