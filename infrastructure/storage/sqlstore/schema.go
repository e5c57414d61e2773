package sqlstore

import "fmt"

// schema returns the idempotent DDL for dialect. Keys are VARCHAR so the
// same layout works on MySQL, which cannot index unbounded TEXT.
func schema(d Dialect) []string {
	ts := d.timestampType()
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS evaluations (
	id           VARCHAR(64)  NOT NULL PRIMARY KEY,
	first_name   VARCHAR(200) NOT NULL,
	last_name    VARCHAR(200) NOT NULL,
	age_years    INTEGER      NOT NULL,
	age_months   INTEGER      NOT NULL,
	school       VARCHAR(200) NOT NULL,
	status       VARCHAR(16)  NOT NULL,
	created_by   VARCHAR(200) NOT NULL DEFAULT '',
	created_at   %[1]s NOT NULL,
	completed_at %[1]s NULL
)`, ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS tasks (
	evaluation_id    VARCHAR(64)  NOT NULL,
	id               VARCHAR(64)  NOT NULL,
	subtest          VARCHAR(32)  NOT NULL,
	position         INTEGER      NOT NULL,
	item             VARCHAR(32)  NOT NULL,
	category         VARCHAR(200) NOT NULL,
	description      VARCHAR(500) NOT NULL,
	response         VARCHAR(16)  NOT NULL,
	last_modified_at %s NULL,
	PRIMARY KEY (evaluation_id, id)
)`, ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS score_results (
	evaluation_id VARCHAR(64) NOT NULL PRIMARY KEY,
	result        %s NOT NULL,
	computed_at   %s NOT NULL
)`, d.textType(), ts),
	}
}
