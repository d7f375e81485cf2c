package database

import "github.com/cdtdelta/checkuser/internal/query"

// Tables lists every table of the schema in creation order.
var Tables = []Table{
	{Name: "actor", Columns: []Column{
		{Name: "actor_id", Type: ColID},
		{Name: "actor_user", Type: ColBigInt, Nullable: true},
		{Name: "actor_name", Type: ColText},
	}},
	{Name: "comment", Columns: []Column{
		{Name: "comment_id", Type: ColID},
		{Name: "comment_text", Type: ColText},
	}},
	{Name: "logging", Columns: []Column{
		{Name: "log_id", Type: ColID},
		{Name: "log_type", Type: ColText},
		{Name: "log_action", Type: ColText},
		{Name: "log_actor", Type: ColBigInt},
		{Name: "log_namespace", Type: ColInt, Default: "0"},
		{Name: "log_title", Type: ColText, Default: "''"},
		{Name: "log_page", Type: ColBigInt, Nullable: true},
		{Name: "log_comment_id", Type: ColBigInt, Nullable: true},
		{Name: "log_params", Type: ColText, Nullable: true},
		{Name: "log_deleted", Type: ColInt, Default: "0"},
		{Name: "log_timestamp", Type: ColTimestamp},
	}},
	{Name: query.SourceChanges, Columns: []Column{
		{Name: "cuc_id", Type: ColID},
		{Name: "cuc_timestamp", Type: ColTimestamp},
		{Name: "cuc_actor", Type: ColBigInt},
		{Name: "cuc_namespace", Type: ColInt, Default: "0"},
		{Name: "cuc_title", Type: ColText, Default: "''"},
		{Name: "cuc_page_id", Type: ColBigInt, Nullable: true},
		{Name: "cuc_ip", Type: ColText, Nullable: true},
		{Name: "cuc_ip_hex", Type: ColText, Nullable: true},
		{Name: "cuc_xff", Type: ColText, Nullable: true},
		{Name: "cuc_xff_hex", Type: ColText, Nullable: true},
		{Name: "cuc_agent", Type: ColText, Nullable: true},
		{Name: "cuc_comment_id", Type: ColBigInt, Nullable: true},
		{Name: "cuc_type", Type: ColInt},
		{Name: "cuc_minor", Type: ColInt, Default: "0"},
		{Name: "cuc_this_oldid", Type: ColBigInt, Nullable: true},
		{Name: "cuc_last_oldid", Type: ColBigInt, Nullable: true},
	}},
	{Name: query.SourceLogEvent, Columns: []Column{
		{Name: "cule_id", Type: ColID},
		{Name: "cule_log_id", Type: ColBigInt},
		{Name: "cule_timestamp", Type: ColTimestamp},
		{Name: "cule_actor", Type: ColBigInt},
		{Name: "cule_ip", Type: ColText, Nullable: true},
		{Name: "cule_ip_hex", Type: ColText, Nullable: true},
		{Name: "cule_xff", Type: ColText, Nullable: true},
		{Name: "cule_xff_hex", Type: ColText, Nullable: true},
		{Name: "cule_agent", Type: ColText, Nullable: true},
	}},
	{Name: query.SourcePrivateEvent, Columns: []Column{
		{Name: "cupe_id", Type: ColID},
		{Name: "cupe_timestamp", Type: ColTimestamp},
		{Name: "cupe_actor", Type: ColBigInt},
		{Name: "cupe_namespace", Type: ColInt, Default: "0"},
		{Name: "cupe_title", Type: ColText, Default: "''"},
		{Name: "cupe_page", Type: ColBigInt, Nullable: true},
		{Name: "cupe_ip", Type: ColText, Nullable: true},
		{Name: "cupe_ip_hex", Type: ColText, Nullable: true},
		{Name: "cupe_xff", Type: ColText, Nullable: true},
		{Name: "cupe_xff_hex", Type: ColText, Nullable: true},
		{Name: "cupe_agent", Type: ColText, Nullable: true},
		{Name: "cupe_comment_id", Type: ColBigInt, Nullable: true},
		{Name: "cupe_log_type", Type: ColText},
		{Name: "cupe_log_action", Type: ColText},
		{Name: "cupe_params", Type: ColText, Nullable: true},
	}},
	{Name: "cu_log", Columns: []Column{
		{Name: "cul_id", Type: ColID},
		{Name: "cul_timestamp", Type: ColTimestamp},
		{Name: "cul_actor_name", Type: ColText},
		{Name: "cul_type", Type: ColText},
		{Name: "cul_target", Type: ColText},
		{Name: "cul_reason", Type: ColText, Default: "''"},
		{Name: "cul_range_start", Type: ColText, Default: "''"},
		{Name: "cul_range_end", Type: ColText, Default: "''"},
		{Name: "cul_client_ip", Type: ColText, Default: "''"},
	}},
}

// Index is a secondary index of the schema.
type Index struct {
	Name    string
	Table   string
	Columns []string
}

// sourceKeys names the actor, address, timestamp and id columns of each
// event source, in the order the hint indexes are built from.
var sourceKeys = map[string][5]string{
	query.SourceChanges:      {"cuc_actor", "cuc_ip_hex", "cuc_xff_hex", "cuc_timestamp", "cuc_id"},
	query.SourceLogEvent:     {"cule_actor", "cule_ip_hex", "cule_xff_hex", "cule_timestamp", "cule_id"},
	query.SourcePrivateEvent: {"cupe_actor", "cupe_ip_hex", "cupe_xff_hex", "cupe_timestamp", "cupe_id"},
}

// Indexes returns every secondary index. Index names of the event sources
// match the query package's index hints.
func Indexes() []Index {
	var out []Index
	for _, src := range query.Sources {
		k := sourceKeys[src]
		out = append(out,
			Index{Name: query.IndexName(src, query.HintActorTime), Table: src, Columns: []string{k[0], k[3], k[4]}},
			Index{Name: query.IndexName(src, query.HintIPHexTime), Table: src, Columns: []string{k[1], k[3], k[4]}},
			Index{Name: query.IndexName(src, query.HintXFFHexTime), Table: src, Columns: []string{k[2], k[3], k[4]}},
		)
	}
	out = append(out,
		Index{Name: "actor_name_idx", Table: "actor", Columns: []string{"actor_name"}},
		Index{Name: "cu_log_actor_time", Table: "cu_log", Columns: []string{"cul_actor_name", "cul_timestamp"}},
		Index{Name: "cu_log_target_time", Table: "cu_log", Columns: []string{"cul_target", "cul_timestamp"}},
	)
	return out
}
