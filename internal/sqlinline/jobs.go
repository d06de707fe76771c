package sqlinline

const QEnqueueJob = `--sql 7c1f4b9e-2d5a-4c8f-9e01-bb64d8a6f3c2
insert into jobs(id, job_type, status, payload, retry_count, max_retries, owner_id, project_id, parent_job_id, created_at)
values (gen_random_uuid(), $1::text, 'pending', $2::jsonb, 0, $3::int, $4::uuid, nullif($5, '')::uuid, nullif($6, '')::uuid, now())
returning id;
`

// QClaimNextJob transitions the oldest pending job to processing. The
// FOR UPDATE SKIP LOCKED row lock guarantees at-most-one claimer even with
// concurrent pollers.
const QClaimNextJob = `--sql 3b8e0d17-64af-40c3-8d52-1f9c7e2a5db4
with next_job as (
    select id
    from jobs
    where status = 'pending'
    order by created_at asc
    for update skip locked
    limit 1
),
claimed as (
    update jobs
    set status = 'processing', processed_at = now()
    where id in (select id from next_job)
    returning id, job_type, status, payload, retry_count, max_retries,
              coalesce(error_message, ''), owner_id, coalesce(project_id::text, ''),
              coalesce(parent_job_id::text, ''), created_at, processed_at, completed_at
)
select * from claimed;
`

const QMarkJobProcessing = `--sql 91d2c5fa-08b3-47e6-b1aa-6c0de84f7215
update jobs
set processed_at = now()
where id = $1::uuid and status = 'processing';
`

// QMarkJobCompleted only fires on a processing row so a double completion
// cannot disturb completed_at.
const QMarkJobCompleted = `--sql e5a7f310-9c46-4d2b-8f7e-04b1a92c6d83
update jobs
set status = 'completed', completed_at = now()
where id = $1::uuid and status = 'processing';
`

// QMarkJobFailed applies the retry budget in a single statement: with budget
// remaining the job is re-queued and retry_count incremented, otherwise it
// lands in terminal failed. retry_count never decreases.
const QMarkJobFailed = `--sql 48c9b2e6-7f15-4a08-93dc-de52f06b19a7
update jobs
set status = case when retry_count < max_retries then 'pending' else 'failed' end,
    retry_count = case when retry_count < max_retries then retry_count + 1 else retry_count end,
    error_message = $2::text
where id = $1::uuid and status = 'processing'
returning status, retry_count;
`

// QMarkJobFailedFinal skips the budget check for failures an agent classified
// as permanent (validation, content policy, unroutable type would still burn
// the budget pointlessly).
const QMarkJobFailedFinal = `--sql b06d81c4-53e9-4f72-a6b8-2917ce04f5da
update jobs
set status = 'failed', error_message = $2::text
where id = $1::uuid and status = 'processing'
returning status, retry_count;
`

const QGetJob = `--sql 2f64a8d0-1b97-45ce-80f3-c5e29ab7d641
select id, job_type, status, payload, retry_count, max_retries,
       coalesce(error_message, ''), owner_id, coalesce(project_id::text, ''),
       coalesce(parent_job_id::text, ''), created_at, processed_at, completed_at
from jobs
where id = $1::uuid;
`

const QCountActiveJobsForOwner = `--sql a9e3517b-6c2d-49f0-bd84-71f0c6e2a958
select
    count(*) filter (where status = 'pending'),
    count(*) filter (where status = 'processing')
from jobs
where owner_id = $1::uuid;
`

const QCountActiveJobsForProject = `--sql 5d07c3f8-e2b1-4869-9a4d-830fe6b215cd
select count(*)
from jobs
where project_id = $1::uuid and status in ('pending', 'processing');
`

// QCountActiveSiblingJobs counts a project's in-flight work that does not
// belong to the given pack run: standalone jobs and children of earlier runs.
// Pack jobs themselves are excluded because the orchestrator runs inside one
// that is necessarily still processing.
const QCountActiveSiblingJobs = `--sql 1fb6d2a9-74c0-4e85-b13f-08d9e5c6a274
select count(*)
from jobs
where project_id = $1::uuid
  and status in ('pending', 'processing')
  and job_type <> 'generate-complete-pack'
  and parent_job_id is distinct from nullif($2, '')::uuid;
`

// QListPackChildren returns every child ever enqueued for one pack run,
// regardless of status. A resumed fanout diffs this against its plan.
const QListPackChildren = `--sql 9a0c6e83-52df-4b71-8c49-e7f014b2d5a6
select id, job_type, status, payload, retry_count, max_retries,
       coalesce(error_message, ''), owner_id, coalesce(project_id::text, ''),
       coalesce(parent_job_id::text, ''), created_at, processed_at, completed_at
from jobs
where parent_job_id = $1::uuid
order by created_at asc;
`

const QListJobsForProject = `--sql c4b90a25-7d68-4e13-b5f2-96a1d30c78e4
select id, job_type, status, payload, retry_count, max_retries,
       coalesce(error_message, ''), owner_id, coalesce(project_id::text, ''),
       coalesce(parent_job_id::text, ''), created_at, processed_at, completed_at
from jobs
where project_id = $1::uuid
order by created_at asc;
`

// QReclaimStuckJobs sweeps jobs stranded in processing (e.g. worker crash
// mid-handler) back through the normal retry budget.
const QReclaimStuckJobs = `--sql 68f2de4b-0a91-4c57-82e6-3dc5b7a40f19
update jobs
set status = case when retry_count < max_retries then 'pending' else 'failed' end,
    retry_count = case when retry_count < max_retries then retry_count + 1 else retry_count end,
    error_message = 'processing timeout exceeded'
where status = 'processing' and processed_at < now() - $1::interval
returning id;
`
