package sqlguard

import "strings"

const schemaDescription = `create table document (
    document_id serial primary key,
    title text not null,
    author text,
    tradition text,
    rhetoric_type text,
    language text,
    estimated_date text,  -- free text such as '1000 BC' or 'c. 1700', never numeric
    notes text
);

create table overview (
    overview_id serial primary key,
    document_id int references document(document_id),
    label text not null,
    summary text not null
);

create table passage (
    passage_id serial primary key,
    document_id int references document(document_id),
    overview_id int references overview(overview_id),
    label text not null,
    content text not null
);

create table embedding_overview (
    overview_id int primary key references overview(overview_id),
    embedding_vector vector(1536) not null
);

create table embedding_passage (
    passage_id int primary key references passage(passage_id),
    embedding_vector vector(1536) not null
);

create table theme (
    theme_id serial primary key,
    name text not null unique,
    description text,
    embedding_vector vector(1536)
);

create table passage_theme (
    passage_id int references passage(passage_id),
    theme_id int references theme(theme_id),
    score real,
    primary key (passage_id, theme_id)
);

create table overview_theme (
    overview_id int references overview(overview_id),
    theme_id int references theme(theme_id),
    score real,
    primary key (overview_id, theme_id)
);`

const exampleDocument = `    title: "Genesis"
    author: "KJV"
    tradition: "Christian, Jewish"
    rhetoric_type: "Narrative"
    language: "English"
    estimated_date: "1000 BC"
    notes: "First book of the Bible"`

// SchemaPrompt builds the SQL-generation prompt for question.
func SchemaPrompt(question string) string {
	var b strings.Builder
	b.WriteString("You are given a Postgres database (with the pgvector extension) set up like this:\n\n")
	b.WriteString(schemaDescription)
	b.WriteString("\n\nAn example of the document data is:\n")
	b.WriteString(exampleDocument)
	b.WriteString("\n\nRules:\n")
	b.WriteString("- The embedding of the question is available as the placeholder " + QueryEmbeddingPlaceholder +
		". Use it with the cosine distance operator <=>, for example ORDER BY ep.embedding_vector <=> " +
		QueryEmbeddingPlaceholder + " LIMIT 20. Similarity is 1 - distance.\n")
	b.WriteString("- For conceptual or semantic questions, rank passages by vector similarity joining passage, embedding_passage and document.\n")
	b.WriteString("- For questions about authorship, tradition, language or dates, join document metadata.\n")
	b.WriteString("- For topical filters, join passage_theme and theme and filter on theme.name.\n")
	b.WriteString("- For comparative questions, aggregate with GROUP BY.\n")
	b.WriteString("- Never match passage.content with LIKE or ILIKE; use vector similarity instead.\n")
	b.WriteString("- estimated_date is text. Compare it numerically only after stripping non-digits and casting.\n")
	b.WriteString("- Write exactly one read-only SELECT statement. No INSERT, UPDATE, DELETE or DDL.\n\n")
	b.WriteString("Write a PostgreSQL statement that answers: ")
	b.WriteString(question)
	b.WriteString("\nOnly return the SQL statement.")
	return b.String()
}
