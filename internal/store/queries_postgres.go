package store

// PostgreSQL query templates, transcribed verbatim (less the "$$"
// abstract-placeholder convention, resolved by ReplaceArgPlaceholders at
// call time) from the original store's postgres backend. All tag
// aggregation happens in SQL: each item's tags are folded into a single
// "plaintext:hex(name):hex(value)" comma-joined string so one round trip
// fetches an item and all of its tags together.
const (
	pgCountQuery = `SELECT COUNT(*) FROM items i
    WHERE profile_id = $$ AND kind = $$ AND category = $$
    AND (expiry IS NULL OR expiry > CURRENT_TIMESTAMP)`

	pgDeleteQuery = `DELETE FROM items
    WHERE profile_id = $$ AND kind = $$ AND category = $$ AND name = $$`

	pgFetchQuery = `SELECT id, value,
    (SELECT ARRAY_TO_STRING(ARRAY_AGG(it.plaintext || ':'
        || ENCODE(it.name, 'hex') || ':' || ENCODE(it.value, 'hex')), ',')
        FROM items_tags it WHERE it.item_id = i.id) tags
    FROM items i
    WHERE profile_id = $$ AND kind = $$ AND category = $$ AND name = $$
    AND (expiry IS NULL OR expiry > CURRENT_TIMESTAMP)`

	pgFetchQueryUpdate = `SELECT id, value,
    (SELECT ARRAY_TO_STRING(ARRAY_AGG(it.plaintext || ':'
        || ENCODE(it.name, 'hex') || ':' || ENCODE(it.value, 'hex')), ',')
        FROM items_tags it WHERE it.item_id = i.id) tags
    FROM items i
    WHERE profile_id = $$ AND kind = $$ AND category = $$ AND name = $$
    AND (expiry IS NULL OR expiry > CURRENT_TIMESTAMP) FOR UPDATE`

	pgInsertQuery = `INSERT INTO items (profile_id, kind, category, name, value, expiry)
    VALUES ($$, $$, $$, $$, $$, $$)
    ON CONFLICT DO NOTHING RETURNING id`

	pgScanQuery = `SELECT id, name, value,
    (SELECT ARRAY_TO_STRING(ARRAY_AGG(it.plaintext || ':'
        || ENCODE(it.name, 'hex') || ':' || ENCODE(it.value, 'hex')), ',')
        FROM items_tags it WHERE it.item_id = i.id) tags
    FROM items i WHERE profile_id = $$ AND kind = $$ AND category = $$
    AND (expiry IS NULL OR expiry > CURRENT_TIMESTAMP)`

	pgDeleteAllQuery = `DELETE FROM items i
    WHERE i.profile_id = $$ AND i.kind = $$ AND i.category = $$`

	pgTagInsertQuery = `INSERT INTO items_tags
    (item_id, name, value, plaintext) VALUES ($$, $$, $$, $$)`

	pgInsertProfileQuery = `INSERT INTO profiles (name, store_key) VALUES ($$, $$)
    ON CONFLICT DO NOTHING RETURNING id`

	pgRemoveProfileQuery = `DELETE FROM profiles WHERE name = $$`

	pgFetchProfileQuery = `SELECT id, store_key FROM profiles WHERE name = $$`

	pgUpdateProfileKeyQuery = `UPDATE profiles SET store_key = $$ WHERE id = $$`
)
