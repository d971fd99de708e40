package store

// SQL statements for the PostgreSQL store. Schema is managed by the
// migrations package; see migrations/001_create_registry_tables.up.sql.

const queryInsertSchema = `
	INSERT INTO schemas (format, fingerprint, canonical, raw)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (fingerprint) DO NOTHING
	RETURNING id, created_at
`

const querySchemaByID = `
	SELECT id, format, fingerprint, canonical, raw, created_at
	FROM schemas
	WHERE id = $1
`

const querySchemaByFingerprint = `
	SELECT id, format, fingerprint, canonical, raw, created_at
	FROM schemas
	WHERE fingerprint = $1
`

// Version assignment counts soft-deleted rows so numbers are never reused.
// Uniqueness under concurrency is guaranteed by the façade's per-subject
// lock; the primary key on (subject, version) backstops it.
const queryInsertVersion = `
	INSERT INTO subject_versions (subject, version, schema_id)
	SELECT $1, COALESCE(MAX(version), 0) + 1, $2
	FROM subject_versions
	WHERE subject = $1
	RETURNING version
`

const queryVersionBySchemaID = `
	SELECT version, schema_id
	FROM subject_versions
	WHERE subject = $1 AND schema_id = $2 AND NOT deleted
`

const queryListVersions = `
	SELECT version
	FROM subject_versions
	WHERE subject = $1 AND NOT deleted
	ORDER BY version
`

const queryVersions = `
	SELECT version, schema_id
	FROM subject_versions
	WHERE subject = $1 AND NOT deleted
	ORDER BY version
`

const queryGetVersion = `
	SELECT version, schema_id, deleted
	FROM subject_versions
	WHERE subject = $1 AND version = $2
`

const queryHasLiveVersion = `
	SELECT EXISTS (
		SELECT 1 FROM subject_versions
		WHERE subject = $1 AND NOT deleted
	)
`

const queryLatestVersion = `
	SELECT version, schema_id
	FROM subject_versions
	WHERE subject = $1 AND NOT deleted
	ORDER BY version DESC
	LIMIT 1
`

const querySoftDeleteVersion = `
	UPDATE subject_versions
	SET deleted = TRUE
	WHERE subject = $1 AND version = $2 AND NOT deleted
`

const queryDeleteSubject = `
	WITH removed AS (
		UPDATE subject_versions
		SET deleted = TRUE
		WHERE subject = $1 AND NOT deleted
		RETURNING version
	)
	SELECT version FROM removed ORDER BY version
`

const queryListSubjects = `
	SELECT DISTINCT subject
	FROM subject_versions
	WHERE NOT deleted
	ORDER BY subject
`

// The compat_configs row with the empty-string subject is the global
// default.
const queryGetMode = `
	SELECT mode FROM compat_configs WHERE subject = $1
`

const querySetMode = `
	INSERT INTO compat_configs (subject, mode)
	VALUES ($1, $2)
	ON CONFLICT (subject) DO UPDATE SET mode = EXCLUDED.mode
`

const queryInitGlobalMode = `
	INSERT INTO compat_configs (subject, mode)
	VALUES ('', $1)
	ON CONFLICT (subject) DO NOTHING
`

const queryClearMode = `
	DELETE FROM compat_configs WHERE subject = $1
`
