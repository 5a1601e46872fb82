package driver

const (
	SaveRunQuery = `
		MERGE (r:Run {uuid: $uuid})
		SET r.bundle = $bundle,
			r.created_at = $created_at,
			r.pages = $pages,
			r.transitions = $transitions
		RETURN r.uuid AS uuid
	`

	SavePageQuery = `
		MATCH (r:Run {uuid: $run_id})
		MERGE (p:Page {run_id: $run_id, index: $index})
		SET p.ability = $ability,
			p.bundle = $bundle,
			p.summary = $summary,
			p.widgets = $widgets,
			p.functions = $functions,
			p.operations = $operations,
			p.area = $area
		MERGE (r)-[:HAS_PAGE]->(p)
		RETURN p.index AS index
	`

	SaveTransitionQuery = `
		MATCH (s:Page {run_id: $run_id, index: $src})
		MATCH (d:Page {run_id: $run_id, index: $dst})
		MERGE (s)-[t:TRANSITION]->(d)
		SET t.events = $events,
			t.description = $description
		RETURN t.description AS description
	`

	CountRunQuery = `
		MATCH (r:Run {uuid: $run_id})-[:HAS_PAGE]->(p:Page)
		OPTIONAL MATCH (p)-[t:TRANSITION]->(:Page {run_id: $run_id})
		RETURN count(DISTINCT p) AS pages, count(t) AS transitions
	`

	DeleteRunQuery = `
		MATCH (r:Run {uuid: $run_id})
		OPTIONAL MATCH (r)-[:HAS_PAGE]->(p:Page)
		DETACH DELETE r, p
	`
)
