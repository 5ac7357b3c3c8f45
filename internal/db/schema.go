package db

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- RESEARCH TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS research SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS query ON research TYPE string;
    DEFINE FIELD IF NOT EXISTS created_by ON research TYPE string;
    DEFINE FIELD IF NOT EXISTS problem_description ON research TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS question ON research TYPE option<string>;
    -- Append-only progress log; writers only ever use events += [...]
    DEFINE FIELD IF NOT EXISTS events ON research TYPE array<object> FLEXIBLE DEFAULT [];
    DEFINE FIELD IF NOT EXISTS result ON research TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS error ON research TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS report ON research TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS is_active ON research TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS created_at ON research TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS processing_started_at ON research TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS processing_ended_at ON research TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS research_created_at ON research FIELDS created_at;

    -- ==========================================================================
    -- RESEARCH_TRACE TABLE (per-research memoization ledger)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS research_trace SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS research_id ON research_trace TYPE string;
    DEFINE FIELD IF NOT EXISTS search_keyword ON research_trace TYPE string;
    DEFINE FIELD IF NOT EXISTS file_name ON research_trace TYPE string;
    DEFINE FIELD IF NOT EXISTS is_relevant ON research_trace TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS metadata ON research_trace TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS summary ON research_trace TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS relevant_parts ON research_trace TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS legal_provisions ON research_trace TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS created_at ON research_trace TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS trace_research ON research_trace FIELDS research_id;
    -- First writer wins: one memo per decision per research
    DEFINE INDEX IF NOT EXISTS trace_memo ON research_trace FIELDS research_id, file_name UNIQUE;

    -- ==========================================================================
    -- KEYWORD TABLE (per-keyword running counters)
    -- ==========================================================================
    -- Records use deterministic [research_id, search_keyword] ids so counter
    -- increments from concurrent analysts land on the same row
    DEFINE TABLE IF NOT EXISTS keyword SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS research_id ON keyword TYPE string;
    DEFINE FIELD IF NOT EXISTS search_keyword ON keyword TYPE string;
    DEFINE FIELD IF NOT EXISTS analysed_results ON keyword TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS relevant_results ON keyword TYPE int DEFAULT 0;

    DEFINE INDEX IF NOT EXISTS keyword_research ON keyword FIELDS research_id;
`
