package neo4j

// Statements issued besides the pattern queries rendered by the
// constraint compiler.
const (
	stmtCreateConstraint  = "CREATE CONSTRAINT link_id IF NOT EXISTS FOR (l:Link) REQUIRE l.id IS UNIQUE"
	stmtCreateSourceIndex = "CREATE INDEX link_source IF NOT EXISTS FOR (l:Link) ON (l.source)"
	stmtCreateTargetIndex = "CREATE INDEX link_target IF NOT EXISTS FOR (l:Link) ON (l.target)"

	stmtMaxID       = "MATCH (l:Link) RETURN COALESCE(max(l.id), 0) AS max_id"
	stmtCreate      = "CREATE (l:Link {id: $id, source: $source, target: $target})"
	stmtCreatePoint = "CREATE (l:Link {id: $id, source: $id, target: $id})"
	stmtGet         = "MATCH (l:Link {id: $id}) RETURN l.source AS source, l.target AS target"
	stmtUpdate      = "MATCH (l:Link {id: $id}) SET l.source = $source, l.target = $target"
	stmtDelete      = "MATCH (l:Link {id: $id}) DELETE l"
	stmtDropAll     = "MATCH (l:Link) DETACH DELETE l"
)

var schemaStatements = []string{stmtCreateConstraint, stmtCreateSourceIndex, stmtCreateTargetIndex}
