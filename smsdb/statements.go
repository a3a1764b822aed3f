package smsdb

// Statement names used with Store.stmt. Keeping the SQL in one
// data-driven table (rather than scattered constants) mirrors how the
// schema below must stay bit-compatible for any process sharing a
// database file.
const (
	stmtGetFullMessage = "get_full_message"
	stmtPutMessage     = "put_message"
	stmtClearMessages  = "clear_messages"
	stmtGetCnt         = "get_cnt"
	stmtInsOutgoingRef = "ins_outgoing_ref"
	stmtSetOutgoingRef = "set_outgoing_ref"
	stmtGetOutgoingRef = "get_outgoing_ref"
	stmtPutOutgoingMsg = "put_outgoing_msg"
	stmtPutOutgoingPrt = "put_outgoing_part"
	stmtDelOutgoingMsg = "del_outgoing_msg"
	stmtDelOutgoingPrt = "del_outgoing_part"
	stmtGetOutgoingMsg = "get_outgoing_msg"
	stmtSetOutgoingPrt = "set_outgoing_part"
	stmtGetOutgoingPrt = "get_outgoing_part"
	stmtCntOutgoingPrt = "cnt_outgoing_part"
	stmtCntAllParts    = "cnt_all_outgoing_part"
	stmtGetDst         = "get_dst"
	stmtGetAllStatus   = "get_all_status"
	stmtGetExpired     = "get_expired"
)

// schema holds the DDL executed at open. IF NOT EXISTS keeps it
// idempotent across restarts sharing one database file.
var schema = []string{
	"CREATE TABLE IF NOT EXISTS incoming (key VARCHAR(256), seqorder INTEGER, expiration TIMESTAMP " +
		"DEFAULT CURRENT_TIMESTAMP, message VARCHAR(256), PRIMARY KEY(key, seqorder))",
	"CREATE INDEX IF NOT EXISTS incoming_key ON incoming(key)",
	// key: IMSI/DEST_ADDR
	"CREATE TABLE IF NOT EXISTS outgoing_ref (key VARCHAR(256), refid INTEGER, PRIMARY KEY(key))",
	"CREATE TABLE IF NOT EXISTS outgoing_msg (uid INTEGER PRIMARY KEY AUTOINCREMENT, dev " +
		"VARCHAR(256), dst VARCHAR(255), cnt INTEGER, expiration TIMESTAMP, srr BOOLEAN)",
	// key: IMSI/DEST_ADDR/MR
	"CREATE TABLE IF NOT EXISTS outgoing_part (key VARCHAR(256), msg INTEGER, status INTEGER, PRIMARY KEY(key))",
	"CREATE INDEX IF NOT EXISTS outgoing_part_msg ON outgoing_part(msg)",
}

// statements are prepared once at open and looked up by name.
var statements = []struct {
	name string
	sql  string
}{
	{stmtGetFullMessage, "SELECT message FROM incoming WHERE key = ? ORDER BY seqorder"},
	{stmtPutMessage, "INSERT OR REPLACE INTO incoming (key, seqorder, expiration, message) VALUES (?, ?, " +
		"datetime(julianday(CURRENT_TIMESTAMP) + ? / 86400.0), ?)"},
	{stmtClearMessages, "DELETE FROM incoming WHERE key = ?"},
	{stmtGetCnt, "SELECT COUNT(seqorder) FROM incoming WHERE key = ?"},
	{stmtInsOutgoingRef, "INSERT INTO outgoing_ref (refid, key) VALUES (?, ?)"},
	{stmtSetOutgoingRef, "UPDATE outgoing_ref SET refid = ? WHERE key = ?"},
	{stmtGetOutgoingRef, "SELECT refid FROM outgoing_ref WHERE key = ?"},
	{stmtPutOutgoingMsg, "INSERT INTO outgoing_msg (dev, dst, cnt, expiration, srr) VALUES (?, ?, ?, " +
		"datetime(julianday(CURRENT_TIMESTAMP) + ? / 86400.0), ?)"},
	{stmtPutOutgoingPrt, "INSERT INTO outgoing_part (key, msg, status) VALUES (?, ?, NULL)"},
	{stmtDelOutgoingMsg, "DELETE FROM outgoing_msg WHERE uid = ?"},
	{stmtDelOutgoingPrt, "DELETE FROM outgoing_part WHERE msg = ?"},
	{stmtGetOutgoingMsg, "SELECT dev, dst, srr FROM outgoing_msg WHERE uid = ?"},
	{stmtSetOutgoingPrt, "UPDATE outgoing_part SET status = ? WHERE rowid = ?"},
	{stmtGetOutgoingPrt, "SELECT rowid, msg FROM outgoing_part WHERE key = ?"},
	// Count all failed and completed parts; don't count parts without a
	// delivery notification yet or temporarily failed ones.
	{stmtCntOutgoingPrt, "SELECT m.cnt, (SELECT COUNT(p.rowid) FROM outgoing_part p WHERE p.msg = m.rowid AND (p.status & 64 != 0 OR " +
		"p.status & 32 = 0)) FROM outgoing_msg m WHERE m.rowid = ?"},
	{stmtCntAllParts, "SELECT m.cnt, (SELECT COUNT(p.rowid) FROM outgoing_part p WHERE p.msg = m.uid) FROM outgoing_msg " +
		"m WHERE m.uid = ?"},
	{stmtGetDst, "SELECT dst FROM outgoing_msg WHERE uid = ?"},
	{stmtGetAllStatus, "SELECT status FROM outgoing_part WHERE msg = ? ORDER BY rowid"},
	// Only fetch one expired row to balance the load of each transaction.
	{stmtGetExpired, "SELECT uid, dst FROM outgoing_msg WHERE expiration < CURRENT_TIMESTAMP LIMIT 1"},
}
