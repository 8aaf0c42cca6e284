package mysql

// Claims the dedup key. With the driver's default (no CLIENT_FOUND_ROWS) the
// statement reports 1 row for a new key, 2 when an expired key is refreshed
// and 0 when the key is still inside the window, i.e. a duplicate.
const claimDedupSQL = `
INSERT INTO change_dedup (location_id, booking_id, last_detected_at)
VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE
  last_detected_at = IF(last_detected_at > ?, last_detected_at, VALUES(last_detected_at))
`

const insertChangeSQL = `
INSERT INTO change_buffer
  (location_id, booking_id, payload, arrival_date, departure_date, detected_at)
VALUES
  (?, ?, ?, ?, ?, ?)
`

// Batched so a large sweep never holds locks for long.
const evictChangesSQL = `DELETE FROM change_buffer WHERE detected_at < ? ORDER BY detected_at LIMIT ?`

const evictDedupSQL = `DELETE FROM change_dedup WHERE last_detected_at < ? LIMIT ?`

const upsertWatermarkSQL = `
INSERT INTO location_watermarks (location_id, last_successful_check)
VALUES (?, ?)
ON DUPLICATE KEY UPDATE last_successful_check = VALUES(last_successful_check)
`

const getWatermarkSQL = `SELECT last_successful_check FROM location_watermarks WHERE location_id = ?`

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

// Stays overlapping [from, to]: arrival inside, departure inside, or the stay
// bracketing the whole range.
const queryChangesSQL = `
SELECT id, location_id, booking_id, payload, arrival_date, departure_date, detected_at
FROM change_buffer
WHERE location_id = ?
  AND (
      (arrival_date BETWEEN ? AND ?)
      OR (departure_date BETWEEN ? AND ?)
      OR (arrival_date <= ? AND departure_date >= ?)
  )
  AND detected_at > ?
  AND detected_at <= ?
ORDER BY detected_at ASC, id ASC
`

const statsSQL = `SELECT COUNT(*), MIN(detected_at), MAX(detected_at) FROM change_buffer`

const recentSQL = `
SELECT id, location_id, booking_id, payload, arrival_date, departure_date, detected_at
FROM change_buffer
ORDER BY detected_at DESC, id DESC
LIMIT ?
`

const recentByLocationSQL = `
SELECT id, location_id, booking_id, payload, arrival_date, departure_date, detected_at
FROM change_buffer
WHERE location_id = ?
ORDER BY detected_at DESC, id DESC
LIMIT ?
`

const listLocationsSQL = `SELECT id, name, is_active FROM locations ORDER BY id`

const getIntegrationSQL = `
SELECT is_active, credentials
FROM location_integrations
WHERE location_id = ? AND provider = ?
`
