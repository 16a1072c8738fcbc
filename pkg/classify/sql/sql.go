// Package sql implements classify.Classifier with keyword/regex
// recognition, since no SQL-parser library in the retrieval pack returns
// the exact {command, type-mask, tables, sql_mode, stmt-id} tuple the
// adapter's contract requires (see DESIGN.md).
package sql

import (
	"regexp"
	"strings"

	"github.com/lishubing/sqlgate/pkg/classify"
)

type Classifier struct{}

func New() *Classifier { return &Classifier{} }

var (
	reBegin      = regexp.MustCompile(`(?i)^\s*(BEGIN|START\s+TRANSACTION)\b`)
	reCommit     = regexp.MustCompile(`(?i)^\s*COMMIT\b`)
	reRollback   = regexp.MustCompile(`(?i)^\s*ROLLBACK\b`)
	reSetAutocommit = regexp.MustCompile(`(?i)^\s*SET\s+(SESSION\s+|@@)?AUTOCOMMIT\s*=\s*(\S+)`)
	reUse        = regexp.MustCompile(`(?i)^\s*USE\s+` + "`?([A-Za-z0-9_$]+)`?")
	reSet        = regexp.MustCompile(`(?i)^\s*SET\s+`)
	reSetUserVar = regexp.MustCompile(`(?i)^\s*SET\s+@([A-Za-z0-9_$]+)\s*:?=`)
	reSetGlobal  = regexp.MustCompile(`(?i)^\s*SET\s+(GLOBAL|@@GLOBAL\.)`)
	reSetSession = regexp.MustCompile(`(?i)^\s*SET\s+(SESSION\s+|@@(SESSION\.)?)?SQL_MODE\s*=\s*'?([^'\s]*)'?`)
	reSelect     = regexp.MustCompile(`(?i)^\s*SELECT\b`)
	reWrite      = regexp.MustCompile(`(?i)^\s*(INSERT|UPDATE|DELETE|REPLACE|LOAD\s+DATA)\b`)
	reDDL        = regexp.MustCompile(`(?i)^\s*(CREATE|ALTER|DROP|TRUNCATE|RENAME)\b`)
	reCreateTmp  = regexp.MustCompile(`(?i)^\s*CREATE\s+(TEMPORARY\s+TABLE|TABLE\s+.*\bAS\b.*)`)
	reShow       = regexp.MustCompile(`(?i)^\s*SHOW\b`)
	reFromTable  = regexp.MustCompile(`(?i)\b(?:FROM|JOIN|INTO|UPDATE)\s+` + "`?([A-Za-z0-9_$]+(?:\\.[A-Za-z0-9_$]+)?)`?")
	rePrepare    = regexp.MustCompile(`(?i)^\s*PREPARE\s+([A-Za-z0-9_$]+)\s+FROM`)
	reDeallocate = regexp.MustCompile(`(?i)^\s*(DEALLOCATE|DROP)\s+PREPARE\b`)
	reExecute    = regexp.MustCompile(`(?i)^\s*EXECUTE\b`)
)

// Classify implements classify.Classifier for COM_QUERY text. Binary
// protocol commands (COM_STMT_*) are classified by the caller directly
// from the command byte, since their type-mask is fixed by the command
// itself; this implementation covers the text-protocol cases spec section
// 4.C describes.
func (c *Classifier) Classify(stmt []byte, currentSQLMode string) (classify.Classification, error) {
	text := string(stmt)
	res := classify.Classification{SQLMode: currentSQLMode}

	switch {
	case reBegin.MatchString(text):
		res.TypeMask |= classify.BeginTrx
	case reCommit.MatchString(text):
		res.TypeMask |= classify.Commit
	case reRollback.MatchString(text):
		res.TypeMask |= classify.Rollback
	case reSetAutocommit.MatchString(text):
		m := reSetAutocommit.FindStringSubmatch(text)
		val := strings.ToUpper(strings.TrimSpace(m[2]))
		if val == "1" || val == "ON" {
			res.TypeMask |= classify.EnableAutocommit | classify.SessionWrite
		} else {
			res.TypeMask |= classify.DisableAutocommit | classify.SessionWrite
		}
	case reUse.MatchString(text):
		res.TypeMask |= classify.SessionWrite
		res.Tables = append(res.Tables, reUse.FindStringSubmatch(text)[1])
	case rePrepare.MatchString(text):
		res.TypeMask |= classify.PrepareNamedStmt | classify.Write
	case reDeallocate.MatchString(text):
		res.TypeMask |= classify.DeallocStmt
	case reExecute.MatchString(text):
		res.TypeMask |= classify.ExecStmt
	case reSetSession.MatchString(text):
		m := reSetSession.FindStringSubmatch(text)
		res.SQLMode = m[3]
		res.TypeMask |= classify.SessionWrite
	case reSetGlobal.MatchString(text):
		res.TypeMask |= classify.GSysVarWrite
	case reSetUserVar.MatchString(text):
		res.TypeMask |= classify.UserVarWrite
	case reSet.MatchString(text):
		res.TypeMask |= classify.SysVarWrite | classify.SessionWrite
	case reShow.MatchString(text):
		res.TypeMask |= classify.Read
	case reCreateTmp.MatchString(text):
		res.TypeMask |= classify.CreateTmpTable | classify.Write
	case reDDL.MatchString(text):
		res.TypeMask |= classify.Write
	case reWrite.MatchString(text):
		res.TypeMask |= classify.Write
	case reSelect.MatchString(text):
		res.TypeMask |= classify.Read
		if strings.Contains(strings.ToUpper(text), "FOR UPDATE") ||
			strings.Contains(strings.ToUpper(text), "LOCK IN SHARE MODE") {
			res.TypeMask |= classify.Write
		}
	default:
		res.TypeMask |= classify.Read
	}

	for _, m := range reFromTable.FindAllStringSubmatch(text, -1) {
		res.Tables = append(res.Tables, m[1])
	}
	return res, nil
}
